package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/vault-cli/ciphora/internal/domain"
)

const masked = "********"

// outputFormat returns the --output flag, falling back to ui.output_format.
func (a *app) outputFormat() (string, error) {
	format := strings.ToLower(a.output)
	if format == "" {
		format = a.cfg.UI.OutputFormat
	}
	switch format {
	case "", "table":
		return "table", nil
	case "json", "yaml":
		return format, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q", domain.ErrValidation, format)
	}
}

// render writes v as JSON or YAML, or calls table for the table format.
func (a *app) render(w io.Writer, v any, table func(tw *tabwriter.Writer)) error {
	format, err := a.outputFormat()
	if err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

// redact hides payloads unless ui.show_passwords or show is set.
func (a *app) redact(records []*domain.Record, show bool) []*domain.Record {
	if show || a.cfg.UI.ShowPasswords {
		return records
	}
	out := make([]*domain.Record, len(records))
	for i, r := range records {
		c := r.Clone()
		if c.Payload() != "" {
			c.SetPayload(masked)
		}
		out[i] = c
	}
	return out
}

func recordTable(tw *tabwriter.Writer, records []*domain.Record) {
	fmt.Fprintln(tw, "ID\tTYPE\tWEBSITE\tUSERNAME\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Type, r.Website, r.Username, r.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

func recordDetail(tw *tabwriter.Writer, r *domain.Record) {
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", label, value)
		}
	}
	row("ID", r.ID)
	row("Type", string(r.Type))
	row("Website", r.Website)
	row("Username", r.Username)
	row("URL", r.URL)
	row("URL suffix", r.URLSuffix)
	row("Notes", r.Notes)
	row("Description", r.Description)
	row(payloadLabel(r.Type), r.Payload())
	row("Created", r.CreatedAt.Format("2006-01-02 15:04:05"))
	row("Updated", r.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func payloadLabel(t domain.RecordType) string {
	switch t {
	case domain.TypeMFA:
		return "Secret"
	case domain.TypeBase64, domain.TypeString, domain.TypeJSON:
		return "Data"
	default:
		return "Password"
	}
}
