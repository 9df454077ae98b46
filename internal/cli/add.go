package cli

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	internalcrypto "github.com/vault-cli/ciphora/internal/crypto"
	"github.com/vault-cli/ciphora/internal/domain"
)

// recordFlags are the record fields shared by add and update.
type recordFlags struct {
	recordType  string
	website     string
	username    string
	url         string
	urlSuffix   string
	showURL     bool
	notes       string
	description string
	payload     string
	file        string
	generate    bool
	length      int
}

func (f *recordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.recordType, "type", "t", "", "record type (password|mfa|base64|string|json)")
	cmd.Flags().StringVar(&f.website, "website", "", "website or service name")
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "username or account")
	cmd.Flags().StringVar(&f.url, "url", "", "login URL")
	cmd.Flags().StringVar(&f.urlSuffix, "url-suffix", "", "path appended to the URL")
	cmd.Flags().BoolVar(&f.showURL, "show-url", false, "show the URL in listings")
	cmd.Flags().StringVar(&f.notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&f.description, "description", "", "short description")
	cmd.Flags().StringVar(&f.payload, "payload", "", "secret value (visible in shell history, prefer the prompt)")
	cmd.Flags().StringVar(&f.file, "file", "", "read the secret value from a file")
	cmd.Flags().BoolVarP(&f.generate, "generate", "g", false, "generate a password")
	cmd.Flags().IntVar(&f.length, "length", 0, "generated password length (default from config)")
}

func parseRecordType(name string) (domain.RecordType, error) {
	if name == "" {
		return domain.TypePassword, nil
	}
	t := domain.RecordType(strings.ToLower(name))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown record type %q", domain.ErrValidation, name)
	}
	return t, nil
}

// payloadFromFlags returns the secret from --payload, --file or --generate.
// ok is false when none of them was given.
func (a *app) payloadFromFlags(cmd *cobra.Command, f *recordFlags, t domain.RecordType) (payload string, ok bool, err error) {
	sources := 0
	for _, name := range []string{"payload", "file", "generate"} {
		if cmd.Flags().Changed(name) {
			sources++
		}
	}
	if sources > 1 {
		return "", false, fmt.Errorf("%w: --payload, --file and --generate are mutually exclusive", domain.ErrValidation)
	}

	switch {
	case cmd.Flags().Changed("payload"):
		return f.payload, true, nil
	case cmd.Flags().Changed("file"):
		data, err := readFile(f.file)
		if err != nil {
			return "", false, err
		}
		if t == domain.TypeBase64 {
			return base64.StdEncoding.EncodeToString(data), true, nil
		}
		return string(data), true, nil
	case f.generate:
		if t != domain.TypePassword {
			return "", false, fmt.Errorf("%w: --generate only applies to password records", domain.ErrValidation)
		}
		opts := a.cfg.GeneratorOptions()
		if f.length > 0 {
			opts.Length = f.length
		}
		password, err := internalcrypto.Generate(opts)
		if err != nil {
			return "", false, fmt.Errorf("failed to generate password: %w", err)
		}
		return password, true, nil
	}
	return "", false, nil
}

func (a *app) promptPayload(t domain.RecordType) (string, error) {
	switch t {
	case domain.TypePassword:
		return a.prompt.Password("Password: ")
	case domain.TypeMFA:
		return a.prompt.Password("TOTP secret (base32): ")
	default:
		return a.prompt.Input(fmt.Sprintf("%s data: ", t))
	}
}

func newAddCommand(a *app) *cobra.Command {
	f := &recordFlags{}

	cmd := &cobra.Command{
		Use:   "add [website]",
		Short: "Add a record to the vault",
		Long: `Add a password, TOTP secret or other secret to the vault.

The secret is prompted for unless --payload, --file or --generate is given.

Example:
  ciphora add github --username alice
  ciphora add github --username alice --generate --length 24
  ciphora add aws --type mfa --username root
  ciphora add deploy-key --type base64 --file id_ed25519
  ciphora add settings --type json --payload '{"region":"eu"}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, args []string, key []byte) error {
			t, err := parseRecordType(f.recordType)
			if err != nil {
				return err
			}

			record := &domain.Record{
				Type:        t,
				Website:     f.website,
				Username:    f.username,
				URL:         f.url,
				URLSuffix:   f.urlSuffix,
				ShowURL:     f.showURL,
				Notes:       f.notes,
				Description: f.description,
			}
			if len(args) == 1 {
				if f.website != "" && f.website != args[0] {
					return fmt.Errorf("%w: website given twice", domain.ErrValidation)
				}
				record.Website = args[0]
			}

			payload, ok, err := a.payloadFromFlags(cmd, f, t)
			if err != nil {
				return err
			}
			if !ok {
				if payload, err = a.promptPayload(t); err != nil {
					return err
				}
			}
			record.SetPayload(payload)

			added, err := a.records.AddPassword(record, key)
			if err != nil {
				return fmt.Errorf("failed to add record: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %s record %s\n", added.Type, added.ID)
			if f.generate {
				fmt.Fprintln(cmd.OutOrStdout(), "Use 'ciphora get "+added.ID+" --copy' to copy the generated password.")
			}
			return nil
		}),
	}

	f.register(cmd)
	return cmd
}
