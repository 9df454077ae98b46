package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vault-cli/ciphora/internal/store"
	"github.com/vault-cli/ciphora/internal/vault"
)

func newPasswdCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the master password",
		Long: `Change the master password. Every record and the MFA secret are
re-encrypted under the new key in a single transaction; if anything fails
the old password keeps working.

MFA and backup codes stay as they are.`,
		Args: cobra.NoArgs,
		RunE: a.withVault(func(cmd *cobra.Command, args []string) error {
			if !a.auth.IsInitialized() {
				return store.ErrNotInitialized
			}

			current, err := a.prompt.Password("Current master password: ")
			if err != nil {
				return err
			}
			key, err := a.loginWith(current)
			if err != nil {
				return err
			}
			defer vault.Zeroize(key)

			next, err := promptNewPassword(a.prompt, "New master password: ")
			if err != nil {
				return err
			}

			newKey, err := a.auth.ChangeMasterPassword(current, next, a.deviceID, key)
			if err != nil {
				return fmt.Errorf("failed to change master password: %w", err)
			}
			vault.Zeroize(newKey)

			fmt.Fprintln(cmd.OutOrStdout(), "✓ Master password changed")
			return nil
		}),
	}
}
