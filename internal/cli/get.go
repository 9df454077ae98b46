package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vault-cli/ciphora/internal/domain"
)

func fieldValue(r *domain.Record, field string) (value string, secret bool, err error) {
	switch strings.ToLower(field) {
	case "", "secret", "payload", "password":
		return r.Payload(), true, nil
	case "website":
		return r.Website, false, nil
	case "username":
		return r.Username, false, nil
	case "url":
		return r.URL + r.URLSuffix, false, nil
	case "notes":
		return r.Notes, false, nil
	case "description":
		return r.Description, false, nil
	case "id":
		return r.ID, false, nil
	default:
		return "", false, fmt.Errorf("%w: unknown field %q (valid: secret, website, username, url, notes, description, id)", domain.ErrValidation, field)
	}
}

// copyToClipboard copies text. The command returns only after the clipboard
// has been cleared, once the vault is closed.
func (a *app) copyToClipboard(cmd *cobra.Command, text, what string, ttl time.Duration) error {
	if !a.clip.Available() {
		return fmt.Errorf("clipboard is not available on this system")
	}
	done, err := a.clip.CopyWithTimeout(text, ttl)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s copied to clipboard\n", what)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s copied to clipboard (clears in %s)\n", what, ttl)
	a.pending = done
	return nil
}

func newGetCommand(a *app) *cobra.Command {
	var (
		field string
		show  bool
		copy  bool
	)

	cmd := &cobra.Command{
		Use:   "get <record>",
		Short: "Get a record from the vault",
		Long: `Show a record or copy one of its fields.

The secret is masked unless --show is given or ui.show_passwords is set.
With --copy the field is copied to the clipboard and cleared after
clipboard_ttl.

Example:
  ciphora get github                    # Show the record, secret masked
  ciphora get github --show             # Show the secret in the terminal
  ciphora get github --copy             # Copy the secret to the clipboard
  ciphora get github --field username   # Print the username`,
		Args: cobra.ExactArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			record, err := a.resolve(args[0], key)
			if err != nil {
				return err
			}

			if copy {
				value, _, err := fieldValue(record, field)
				if err != nil {
					return err
				}
				return a.copyToClipboard(cmd, value, "Field "+field, a.cfg.ClipboardTTL)
			}

			if cmd.Flags().Changed("field") {
				value, secret, err := fieldValue(record, field)
				if err != nil {
					return err
				}
				if secret && !show && !a.cfg.UI.ShowPasswords {
					return fmt.Errorf("%w: use --show or --copy to reveal the secret", domain.ErrValidation)
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			}

			view := a.redact([]*domain.Record{record}, show)[0]
			return a.render(cmd.OutOrStdout(), view, func(tw *tabwriter.Writer) {
				recordDetail(tw, view)
			})
		}),
	}

	cmd.Flags().StringVarP(&field, "field", "f", "secret", "field to retrieve (secret|website|username|url|notes|description|id)")
	cmd.Flags().BoolVar(&show, "show", false, "show the secret in the terminal (security warning)")
	cmd.Flags().BoolVarP(&copy, "copy", "c", false, "copy the field to the clipboard")
	return cmd
}

func newTOTPCommand(a *app) *cobra.Command {
	var copy bool

	cmd := &cobra.Command{
		Use:   "totp <record>",
		Short: "Show the current code of an MFA record",
		Long: `Compute the current 6-digit code from the secret stored in an mfa record.

Example:
  ciphora totp aws
  ciphora totp aws --copy`,
		Args: cobra.ExactArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			record, err := a.resolve(args[0], key)
			if err != nil {
				return err
			}
			if record.Type != domain.TypeMFA {
				return fmt.Errorf("%w: %s is a %s record, not mfa", domain.ErrValidation, record.ID, record.Type)
			}

			code, err := a.totp.GenerateTOTP(record.Secret)
			if err != nil {
				return fmt.Errorf("failed to compute code: %w", err)
			}

			if copy {
				return a.copyToClipboard(cmd, code.Value, "Code", a.cfg.ClipboardTTL)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (expires in %ds)\n", code.Value, code.ExpiresIn)
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&copy, "copy", "c", false, "copy the code to the clipboard")
	return cmd
}
