package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vault-cli/ciphora/internal/domain"
)

func newMFACommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mfa",
		Short: "Manage two-factor login",
		Long: `Protect the vault with a TOTP authenticator app in addition to the
master password.

Enrollment takes two steps: 'mfa setup' shows a secret to add to the
authenticator app, and 'mfa verify' activates it with a code from the app.
Login then needs a code (--mfa) or one of the single-use backup codes.`,
	}

	cmd.AddCommand(
		newMFASetupCommand(a),
		newMFAVerifyCommand(a),
		newMFADisableCommand(a),
	)
	return cmd
}

func newMFASetupCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Generate a TOTP secret for enrollment",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			setup, err := a.auth.SetupMFA(a.deviceID, key)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Add this secret to your authenticator app:")
			fmt.Fprintf(out, "  Secret: %s\n", setup.Secret)
			fmt.Fprintf(out, "  URI:    %s\n", setup.URI)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Then activate it with:\n  ciphora mfa verify --secret %s --code <code>\n", setup.Secret)
			return nil
		}),
	}
}

func newMFAVerifyCommand(a *app) *cobra.Command {
	var secret, code string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Activate the pending TOTP secret",
		Long: `Activate the secret staged by 'mfa setup'. --secret must repeat it and
--code must be the current code from the authenticator app.

Backup codes are printed once. Store them somewhere safe: each one can
replace an authenticator code for a single login.`,
		Args: cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			if secret == "" {
				return fmt.Errorf("%w: --secret is required", domain.ErrValidation)
			}
			if code == "" {
				var err error
				if code, err = a.prompt.Input("Authenticator code: "); err != nil {
					return err
				}
			}

			codes, err := a.auth.VerifyMFA(code, secret)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✓ Two-factor login enabled")
			fmt.Fprintln(out, "Backup codes (shown only once):")
			for _, c := range codes {
				fmt.Fprintf(out, "  %s\n", c)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&secret, "secret", "", "secret shown by 'mfa setup'")
	cmd.Flags().StringVar(&code, "code", "", "current authenticator code")
	return cmd
}

func newMFADisableCommand(a *app) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Turn two-factor login off",
		Long: `Turn two-factor login off and drop the backup codes. An active setup
needs a current authenticator code or a backup code; a pending one is
discarded without.`,
		Args: cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			status, err := a.auth.Status()
			if err != nil {
				return err
			}
			if status.MFA == domain.MFAActive && code == "" {
				if code, err = a.prompt.Input("Authenticator or backup code: "); err != nil {
					return err
				}
			}

			if err := a.auth.DisableMFA(code, key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Two-factor login disabled")
			return nil
		}),
	}

	cmd.Flags().StringVar(&code, "code", "", "authenticator or backup code")
	return cmd
}
