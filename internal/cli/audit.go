package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vault-cli/ciphora/internal/domain"
)

func newAuditCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "View the audit log",
		Long: `View the audit log of security relevant operations: logins, password
and MFA changes, resets. Entries never contain secrets.

Example:
  ciphora audit
  ciphora audit --limit 100 -o json`,
		Args: cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			if limit < 0 {
				return fmt.Errorf("%w: --limit must not be negative", domain.ErrValidation)
			}

			ops, err := a.store.AuditLog()
			if err != nil {
				return fmt.Errorf("failed to read audit log: %w", err)
			}
			if limit > 0 && len(ops) > limit {
				ops = ops[len(ops)-limit:]
			}

			return a.render(cmd.OutOrStdout(), ops, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "TIME\tOPERATION\tRESULT\tDETAIL")
				for _, op := range ops {
					result := "ok"
					if !op.Success {
						result = "failed"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", op.Timestamp.Local().Format(time.DateTime), op.Type, result, op.Detail)
				}
			})
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show the last n entries (0 for all)")
	return cmd
}
