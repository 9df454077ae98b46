package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vault-cli/ciphora/internal/auth"
	"github.com/vault-cli/ciphora/internal/domain"
	"github.com/vault-cli/ciphora/internal/vault"
)

func newInitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new vault",
		Long: `Initialize a new vault protected by a master password.

The vault is created with strong cryptographic defaults:
- Argon2id key derivation bound to this device
- AES-256-GCM authenticated encryption
- Secure file permissions (0600)

Example:
  ciphora init
  ciphora init --vault /path/to/vault.db`,
		Args: cobra.NoArgs,
		RunE: a.withVault(func(cmd *cobra.Command, args []string) error {
			if a.auth.IsInitialized() {
				return fmt.Errorf("vault already exists at %s: %w", a.cfg.VaultPath, domain.ErrState)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Creating new vault...")
			fmt.Fprintln(out, "Choose a strong master password. It encrypts all your data and cannot be recovered.")

			password, err := promptNewPassword(a.prompt, "Enter master password: ")
			if err != nil {
				return err
			}

			key, err := a.auth.Initialize(password, a.deviceID)
			if err != nil {
				return fmt.Errorf("failed to create vault: %w", err)
			}
			vault.Zeroize(key)

			params := a.engine.Params()
			fmt.Fprintf(out, "✓ Vault created successfully at %s\n", a.cfg.VaultPath)
			fmt.Fprintf(out, "KDF Parameters:\n")
			fmt.Fprintf(out, "  Memory: %d KB\n", params.Memory)
			fmt.Fprintf(out, "  Iterations: %d\n", params.Iterations)
			fmt.Fprintf(out, "  Parallelism: %d\n", params.Parallelism)
			return nil
		}),
	}
}

func newResetCommand(a *app) *cobra.Command {
	var confirmText string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Erase the vault and start over",
		Long: fmt.Sprintf(`Erase the credential, every record and the audit log, and restore the
settings to their defaults (file locations are kept).

This cannot be undone. You are asked to type %q unless --confirm
carries the same text. No password is required, so a forgotten
master password can be recovered from by starting over.`, auth.ResetConfirmation),
		Args: cobra.NoArgs,
		RunE: a.withVault(func(cmd *cobra.Command, args []string) error {
			text := confirmText
			if !cmd.Flags().Changed("confirm") {
				var err error
				text, err = a.prompt.Input(fmt.Sprintf("Type %q to erase the vault: ", auth.ResetConfirmation))
				if err != nil {
					return err
				}
			}

			if err := a.auth.Reset(text); err != nil {
				return err
			}
			if err := a.settings.Reset(); err != nil {
				return fmt.Errorf("vault erased but settings were not reset: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Vault erased and settings restored to defaults")
			return nil
		}),
	}

	cmd.Flags().StringVar(&confirmText, "confirm", "", "confirmation text for non-interactive use")
	return cmd
}
