package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vault-cli/ciphora/internal/domain"
)

func newUpdateCommand(a *app) *cobra.Command {
	f := &recordFlags{}
	var promptSecret bool

	cmd := &cobra.Command{
		Use:   "update <record>",
		Short: "Update a record in the vault",
		Long: `Update the fields of an existing record. Only the flags given are changed.

A record is named by its id, a unique id prefix or a unique website.

Example:
  ciphora update github --username new-user
  ciphora update github --generate
  ciphora update 01926f3a --prompt-secret
  ciphora update notes --type string --payload "new text"`,
		Args: cobra.ExactArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			current, err := a.resolve(args[0], key)
			if err != nil {
				return err
			}
			record := current.Clone()
			updated := false

			if cmd.Flags().Changed("type") {
				t, err := parseRecordType(f.recordType)
				if err != nil {
					return err
				}
				payload := record.Payload()
				record.Type = t
				record.SetPayload(payload)
				updated = true
			}

			for name, apply := range map[string]func(){
				"website":     func() { record.Website = f.website },
				"username":    func() { record.Username = f.username },
				"url":         func() { record.URL = f.url },
				"url-suffix":  func() { record.URLSuffix = f.urlSuffix },
				"show-url":    func() { record.ShowURL = f.showURL },
				"notes":       func() { record.Notes = f.notes },
				"description": func() { record.Description = f.description },
			} {
				if cmd.Flags().Changed(name) {
					apply()
					updated = true
				}
			}

			payload, ok, err := a.payloadFromFlags(cmd, f, record.Type)
			if err != nil {
				return err
			}
			if !ok && promptSecret {
				if payload, err = a.promptPayload(record.Type); err != nil {
					return err
				}
				ok = true
			}
			if ok {
				record.SetPayload(payload)
				updated = true
			}

			if !updated {
				return fmt.Errorf("%w: no changes given", domain.ErrValidation)
			}

			saved, err := a.records.UpdatePassword(current.ID, record, key)
			if err != nil {
				return fmt.Errorf("failed to update record: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated %s\n", saved.ID)
			return nil
		}),
	}

	f.register(cmd)
	cmd.Flags().BoolVar(&promptSecret, "prompt-secret", false, "prompt for a new secret value")
	return cmd
}
