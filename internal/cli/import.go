package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vault-cli/ciphora/internal/domain"
	"github.com/vault-cli/ciphora/internal/transfer"
)

// formatFromPath guesses the import format from the file extension.
func formatFromPath(path string) (transfer.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return transfer.FormatJSON, nil
	case ".yaml", ".yml":
		return transfer.FormatYAML, nil
	case ".csv":
		return transfer.FormatCSV, nil
	case ".ciphora":
		return transfer.FormatBackup, nil
	}
	return "", fmt.Errorf("%w: cannot tell the format of %s, use --format", domain.ErrValidation, path)
}

// parseOverrides parses --decide values of the form index=decision.
func parseOverrides(values []string) (map[int]transfer.Decision, error) {
	overrides := make(map[int]transfer.Decision, len(values))
	for _, v := range values {
		idx, name, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("%w: --decide wants index=decision, got %q", domain.ErrValidation, v)
		}
		i, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil || i < 0 {
			return nil, fmt.Errorf("%w: bad candidate index %q", domain.ErrValidation, idx)
		}
		d, err := transfer.ParseDecision(name)
		if err != nil {
			return nil, err
		}
		overrides[i] = d
	}
	return overrides, nil
}

func readSource(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	return readFile(path)
}

func previewTable(tw *tabwriter.Writer, p *transfer.ImportPreview) {
	fmt.Fprintf(tw, "New:\t%d\n", len(p.New))
	fmt.Fprintf(tw, "Conflicts:\t%d\n", len(p.Conflicts))
	fmt.Fprintf(tw, "Identical:\t%d\n", len(p.Identical))
	if len(p.Conflicts) == 0 {
		return
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "INDEX\tTYPE\tWEBSITE\tUSERNAME\tEXISTING ID")
	for _, c := range p.Conflicts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", c.Index, c.Incoming.Type, c.Incoming.Website, c.Incoming.Username, c.Existing.ID)
	}
}

func newImportCommand(a *app) *cobra.Command {
	var (
		format     string
		resolution string
		matcher    string
		decide     []string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import records from a file",
		Long: `Import records from another password manager or a ciphora export.

Incoming records that match a vault record (same website and username by
default) are conflicts. Conflicts and identical records follow --resolution
unless --decide names a decision for their index:

  keep-existing  leave the vault record, skip the incoming one
  overwrite      replace the vault record, keeping its id
  keep-both      add the incoming record next to the existing one

Nothing is written until the preview is confirmed, and then everything is
written at once.

Example:
  ciphora import chrome.csv --format chrome
  ciphora import export.json --dry-run
  ciphora import bitwarden.csv --format bitwarden --resolution overwrite
  ciphora import export.json --decide 3=keep-both --decide 7=overwrite`,
		Args: cobra.ExactArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			var f transfer.Format
			var err error
			if format == "" {
				f, err = formatFromPath(args[0])
			} else {
				f, err = transfer.ParseFormat(format)
			}
			if err != nil {
				return err
			}
			if f == transfer.FormatBackup {
				return fmt.Errorf("%w: backups are applied with 'ciphora restore'", domain.ErrValidation)
			}

			if resolution == "" {
				resolution = a.cfg.Import.DefaultResolution
			}
			def, err := transfer.ParseDecision(resolution)
			if err != nil {
				return err
			}
			overrides, err := parseOverrides(decide)
			if err != nil {
				return err
			}

			svc := a.transfer
			if matcher != "" {
				m, err := transfer.MatcherByName(matcher)
				if err != nil {
					return err
				}
				svc = transfer.NewService(a.store, a.engine, a.log, transfer.WithMatcher(m), transfer.WithClock(a.now))
			}

			source, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}

			preview, err := svc.ImportPasswords(source, f, key)
			if err != nil {
				return fmt.Errorf("failed to read import: %w", err)
			}

			out := cmd.OutOrStdout()
			if err := a.render(out, a.redactPreview(preview), func(tw *tabwriter.Writer) {
				previewTable(tw, preview)
			}); err != nil {
				return err
			}
			if dryRun {
				return nil
			}
			if preview.Total() == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "Nothing to import.")
				return nil
			}

			ok, err := a.confirm(fmt.Sprintf("Import %d records (colliding: %s)?", preview.Total(), def))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled.")
				return nil
			}

			result, err := svc.ProcessImportWithResolution(preview, transfer.Resolution{Default: def, Overrides: overrides}, key)
			if err != nil {
				return fmt.Errorf("failed to import: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Imported: %d added, %d overwritten, %d skipped\n",
				result.Added, result.Overwritten, result.Skipped)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "import format (default from the file extension)")
	cmd.Flags().StringVar(&resolution, "resolution", "", "decision for colliding records (keep-existing|overwrite|keep-both)")
	cmd.Flags().StringVar(&matcher, "matcher", "", "how collisions are found (website-username|all-fields)")
	cmd.Flags().StringArrayVar(&decide, "decide", nil, "per-candidate decision, index=decision (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the preview without importing")
	return cmd
}

// redactPreview masks payloads in a preview for json/yaml output.
func (a *app) redactPreview(p *transfer.ImportPreview) *transfer.ImportPreview {
	mask := func(cands []transfer.Candidate) []transfer.Candidate {
		out := make([]transfer.Candidate, len(cands))
		for i, c := range cands {
			c.Incoming = a.redact([]*domain.Record{c.Incoming}, false)[0]
			if c.Existing != nil {
				c.Existing = a.redact([]*domain.Record{c.Existing}, false)[0]
			}
			out[i] = c
		}
		return out
	}
	return &transfer.ImportPreview{
		Format:    p.Format,
		New:       mask(p.New),
		Conflicts: mask(p.Conflicts),
		Identical: mask(p.Identical),
	}
}

func newRestoreCommand(a *app) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "restore <backup>",
		Short: "Restore a password protected backup",
		Long: `Restore records from a backup created with 'ciphora backup'.

  replace  the vault holds exactly the backup's records afterwards
  merge    backup records are added, replacing vault records with the same id

Example:
  ciphora restore vault.ciphora
  ciphora restore vault.ciphora --mode merge`,
		Args: cobra.ExactArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			m, err := transfer.ParseRestoreMode(mode)
			if err != nil {
				return err
			}
			data, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}

			if m == transfer.RestoreReplace {
				ok, err := a.confirm("Replace every record in the vault with the backup?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			password, err := a.prompt.Password("Backup password: ")
			if err != nil {
				return err
			}

			result, err := a.transfer.RestoreBackup(data, password, key, m)
			if err != nil {
				return fmt.Errorf("failed to restore: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Restored %d records from %s (%s, %d replaced, %d total)\n",
				result.Restored, result.CreatedAt.Local().Format("2006-01-02 15:04"), result.Mode, result.Replaced, result.Total)
			return nil
		}),
	}

	cmd.Flags().StringVar(&mode, "mode", string(transfer.RestoreReplace), "restore mode (replace|merge)")
	return cmd
}
