package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vault-cli/ciphora/internal/domain"
	"github.com/vault-cli/ciphora/internal/transfer"
)

// writeResult writes data to path, or to stdout when path is empty or "-".
func writeResult(w io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	return writeFile(path, data)
}

func newExportCommand(a *app) *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export records to a file",
		Long: `Export every record in a plain format. The output is NOT encrypted;
use 'ciphora backup' for an encrypted copy.

Records a format cannot represent are skipped (chrome only carries
password records).

Example:
  ciphora export --format json --out vault.json
  ciphora export --format bitwarden --out bitwarden.csv
  ciphora export --format yaml`,
		Args: cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			f, err := transfer.ParseFormat(format)
			if err != nil {
				return err
			}
			if f == transfer.FormatBackup {
				return a.backup(cmd, out, key)
			}

			data, err := a.transfer.ExportPasswords(f, key)
			if err != nil {
				return fmt.Errorf("failed to export: %w", err)
			}
			if err := writeResult(cmd.OutOrStdout(), out, data); err != nil {
				return err
			}
			if out != "" && out != "-" {
				info, _ := f.Info()
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %s to %s (unencrypted, delete it when done)\n", info.Description, out)
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(transfer.FormatJSON), "export format (see 'ciphora formats')")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	return cmd
}

func (a *app) backup(cmd *cobra.Command, out string, key []byte) error {
	if out == "" {
		return fmt.Errorf("%w: --out is required for a backup", domain.ErrValidation)
	}

	password, err := promptNewPassword(a.prompt, "Backup password: ")
	if err != nil {
		return err
	}

	data, err := a.transfer.CreateBackup(password, key)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	if err := writeFile(out, data); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Backup written to %s\n", out)
	return nil
}

func newBackupCommand(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a password protected backup",
		Long: `Seal every record under a separate backup password. The backup does not
depend on this device or the master password and restores anywhere.

Example:
  ciphora backup --out vault.ciphora`,
		Args: cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			return a.backup(cmd, out, key)
		}),
	}

	cmd.Flags().StringVar(&out, "out", "", "backup file")
	return cmd
}

func newFormatsCommand(a *app) *cobra.Command {
	var imports bool

	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List import and export formats",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			formats := transfer.ExportFormats()
			if imports {
				formats = transfer.ImportFormats()
			}
			return a.render(cmd.OutOrStdout(), formats, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "FORMAT\tEXTENSION\tENCRYPTED\tDESCRIPTION")
				for _, f := range formats {
					fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", f.Name, f.Extension, f.Encrypted, f.Description)
				}
			})
		}),
	}

	cmd.Flags().BoolVar(&imports, "import", false, "list the formats accepted by import and restore")
	return cmd
}

func newTemplateCommand(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "template <format>",
		Short: "Print a sample import file",
		Long: `Print a sample file showing the layout the importer expects.

Example:
  ciphora template csv
  ciphora template json --out import.json`,
		Args: cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			f, err := transfer.ParseFormat(args[0])
			if err != nil {
				return err
			}
			data, err := transfer.GenerateImportTemplate(f)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), out, data)
		}),
	}

	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	return cmd
}
