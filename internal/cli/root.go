// Package cli implements the ciphora command line. Every invocation opens
// the vault, authenticates, performs one operation and locks again.
package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vault-cli/ciphora/internal/clipboard"
	"github.com/vault-cli/ciphora/internal/config"
	"github.com/vault-cli/ciphora/internal/logger"
)

// Version is set at build time.
var Version = "dev"

// Options injects the collaborators of the command tree. Zero values select
// the real terminal, clipboard and config file.
type Options struct {
	// Config skips loading the config file when set.
	Config     *config.Config
	ConfigPath string
	Prompter   Prompter
	Clipboard  *clipboard.Clipboard
	Logger     *logger.Logger
	Now        func() time.Time
}

// NewRootCommand builds the command tree.
func NewRootCommand(opts Options) *cobra.Command {
	a := newApp(opts)

	root := &cobra.Command{
		Use:   "ciphora",
		Short: "A local, encrypted password and secret manager",
		Long: `Ciphora keeps passwords, TOTP secrets and other small secrets in an
encrypted vault on this machine. Nothing is sent over the network.

Features:
- AES-256-GCM encryption with Argon2id key derivation bound to this device
- Optional TOTP two-factor login with single-use backup codes
- Import from Chrome, Bitwarden, CSV, JSON and YAML
- Password protected backups that restore on any machine`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", opts.ConfigPath, "config file (default is $HOME/.config/ciphora/config.yaml)")
	root.PersistentFlags().StringVar(&a.vaultPath, "vault", "", "vault database path")
	root.PersistentFlags().StringVar(&a.mfaToken, "mfa", "", "authenticator code or backup code")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "", "output format (table|json|yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVarP(&a.yes, "yes", "y", false, "do not ask for confirmation")

	root.AddCommand(
		newInitCommand(a),
		newStatusCommand(a),
		newLoginCheckCommand(a),
		newAddCommand(a),
		newGetCommand(a),
		newListCommand(a),
		newSearchCommand(a),
		newUpdateCommand(a),
		newDeleteCommand(a),
		newClearCommand(a),
		newStatsCommand(a),
		newExportCommand(a),
		newImportCommand(a),
		newBackupCommand(a),
		newRestoreCommand(a),
		newPasswdCommand(a),
		newMFACommand(a),
		newTOTPCommand(a),
		newPassgenCommand(a),
		newAuditCommand(a),
		newResetCommand(a),
		newFormatsCommand(a),
		newTemplateCommand(a),
		newConfigCommand(a),
	)

	return root
}

// Execute runs the command line with args and writes output to out and
// diagnostics to errOut.
func Execute(args []string, out, errOut io.Writer) error {
	root := NewRootCommand(Options{})
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.Execute()
}
