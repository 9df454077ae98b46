package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <record>",
		Aliases: []string{"rm"},
		Short:   "Delete a record from the vault",
		Long: `Delete a record. You are asked to confirm unless --yes is given or
ui.confirm_destructive is off.

Example:
  ciphora delete github
  ciphora delete 01926f3a --yes`,
		Args: cobra.ExactArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			record, err := a.resolve(args[0], key)
			if err != nil {
				return err
			}

			label := record.Website
			if record.Username != "" {
				label += " (" + record.Username + ")"
			}
			ok, err := a.confirm(fmt.Sprintf("Delete %s record %s?", record.Type, label))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}

			if err := a.records.DeletePassword(record.ID, key); err != nil {
				return fmt.Errorf("failed to delete record: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", record.ID)
			return nil
		}),
	}
}

func newClearCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every record",
		Long: `Delete every record but keep the vault, the master password and MFA.
Use 'ciphora reset' to erase the vault itself.`,
		Args: cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			ok, err := a.confirm("Delete ALL records?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}

			n, err := a.records.ClearAllPasswords(key)
			if err != nil {
				return fmt.Errorf("failed to clear vault: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %d records\n", n)
			return nil
		}),
	}
}
