package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vault-cli/ciphora/internal/domain"
)

func newListCommand(a *app) *cobra.Command {
	var (
		recordType string
		show       bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List records in the vault",
		Long: `List every record in insertion order. Secrets are only included in
json and yaml output, and masked unless --show is given.

Example:
  ciphora list
  ciphora list --type mfa
  ciphora list -o json --show`,
		Args: cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			records, err := a.records.GetPasswords(key)
			if err != nil {
				return err
			}

			if recordType != "" {
				t, err := parseRecordType(recordType)
				if err != nil {
					return err
				}
				filtered := records[:0]
				for _, r := range records {
					if r.Type == t {
						filtered = append(filtered, r)
					}
				}
				records = filtered
			}

			return a.renderRecords(cmd, records, show)
		}),
	}

	cmd.Flags().StringVarP(&recordType, "type", "t", "", "only list records of this type")
	cmd.Flags().BoolVar(&show, "show", false, "include secrets in json/yaml output")
	return cmd
}

func (a *app) renderRecords(cmd *cobra.Command, records []*domain.Record, show bool) error {
	view := a.redact(records, show)
	return a.render(cmd.OutOrStdout(), view, func(tw *tabwriter.Writer) {
		if len(view) == 0 {
			fmt.Fprintln(tw, "No records found.")
			return
		}
		recordTable(tw, view)
	})
}

func newSearchCommand(a *app) *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search records",
		Long: `Find records whose website, username, notes or description contain
the term, ignoring case.

Example:
  ciphora search git
  ciphora search "work account"`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			records, err := a.records.SearchPasswords(strings.Join(args, " "), key)
			if err != nil {
				return err
			}
			return a.renderRecords(cmd, records, show)
		}),
	}

	cmd.Flags().BoolVar(&show, "show", false, "include secrets in json/yaml output")
	return cmd
}

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show record counts by type",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			stats, err := a.records.GetStatistics(key)
			if err != nil {
				return err
			}

			return a.render(cmd.OutOrStdout(), stats, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "Total:\t%d\n", stats.Total)
				types := make([]string, 0, len(stats.ByType))
				for t := range stats.ByType {
					types = append(types, string(t))
				}
				sort.Strings(types)
				for _, t := range types {
					fmt.Fprintf(tw, "  %s:\t%d\n", t, stats.ByType[domain.RecordType(t)])
				}
			})
		}),
	}
}
