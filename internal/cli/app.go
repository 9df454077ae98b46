package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vault-cli/ciphora/internal/auth"
	"github.com/vault-cli/ciphora/internal/clipboard"
	"github.com/vault-cli/ciphora/internal/config"
	"github.com/vault-cli/ciphora/internal/domain"
	"github.com/vault-cli/ciphora/internal/logger"
	"github.com/vault-cli/ciphora/internal/mfa"
	"github.com/vault-cli/ciphora/internal/passwords"
	"github.com/vault-cli/ciphora/internal/session"
	"github.com/vault-cli/ciphora/internal/store"
	"github.com/vault-cli/ciphora/internal/transfer"
	"github.com/vault-cli/ciphora/internal/vault"
)

// app carries the state of one invocation.
type app struct {
	opts Options

	// flags
	cfgPath   string
	vaultPath string
	mfaToken  string
	output    string
	verbose   bool
	yes       bool

	cfg       *config.Config
	settings  *config.Settings
	log       *logger.Logger
	logCloser io.Closer
	prompt    Prompter
	clip      *clipboard.Clipboard
	now       func() time.Time
	pending   <-chan struct{}

	store    *store.BoltStore
	deviceID string
	engine   *vault.CryptoEngine
	totp     *mfa.Service
	keeper   *session.Keeper
	auth     *auth.Service
	records  *passwords.Service
	transfer *transfer.Service
}

func newApp(opts Options) *app {
	a := &app{opts: opts, now: opts.Now}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// load reads the configuration and sets up logging. It does not touch the
// vault.
func (a *app) load(cmd *cobra.Command) error {
	a.prompt = a.opts.Prompter
	if a.prompt == nil {
		a.prompt = newTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	}
	a.clip = a.opts.Clipboard
	if a.clip == nil {
		a.clip = clipboard.New()
	}

	if a.opts.Config != nil {
		cfg := *a.opts.Config
		a.cfg = &cfg
	} else {
		cfg, err := config.LoadConfig(a.cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		a.cfg = cfg
	}
	// settings persist the file values, not the --vault override
	persisted := *a.cfg
	a.settings = config.NewSettings(&persisted, a.cfgPath)
	if a.vaultPath != "" {
		a.cfg.VaultPath = a.vaultPath
	}

	if a.opts.Logger != nil {
		a.log = a.opts.Logger
	} else {
		l, closer, err := logger.NewFileLogger("cli", a.cfg.LogPath)
		if err != nil {
			// logging must never stop the vault from working
			l = logger.Nop()
		}
		a.log = l
		a.logCloser = closer
	}
	a.log = a.log.WithLevel(a.cfg.LogLevel)
	if a.verbose {
		a.log = a.log.WithLevel("debug")
	}
	return nil
}

// open opens the vault file and wires the services.
func (a *app) open() error {
	if a.store != nil {
		return nil
	}

	st, err := store.Open(a.cfg.VaultPath, store.DefaultOptions())
	if err != nil {
		return err
	}

	deviceID, err := session.LoadOrCreateDeviceID(a.cfg.DeviceIDPath)
	if err != nil {
		_ = st.Close()
		return err
	}

	a.store = st
	a.deviceID = deviceID
	a.engine = vault.NewCryptoEngine(a.cfg.Argon2Params())
	a.totp = mfa.New(mfa.WithClock(a.now))
	a.keeper = session.NewKeeper(a.cfg.SessionTTL())

	a.auth = auth.NewService(st, a.engine, a.totp, a.keeper, a.log,
		auth.WithIssuer(a.cfg.MFA.Issuer),
		auth.WithBackupCodeCount(a.cfg.MFA.BackupCodeCount),
		auth.WithClock(a.now))
	a.records = passwords.NewService(st, a.engine, a.log, passwords.WithClock(a.now))

	matcher, err := transfer.MatcherByName(a.cfg.Import.Matcher)
	if err != nil {
		return err
	}
	a.transfer = transfer.NewService(st, a.engine, a.log,
		transfer.WithMatcher(matcher),
		transfer.WithClock(a.now))

	a.log.Debug().Str("vault", a.cfg.VaultPath).Msg("vault opened")
	return nil
}

// close locks the session and releases the vault file.
func (a *app) close() error {
	var errs []error
	if a.keeper != nil && a.keeper.Unlocked() {
		errs = append(errs, a.auth.Logout())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
		a.logCloser = nil
	}
	return errors.Join(errs...)
}

// run wraps a command body so the vault is always closed afterwards.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if cerr := a.close(); cerr != nil && err == nil {
				err = cerr
			}
			if a.pending != nil {
				<-a.pending
			}
		}()
		return fn(cmd, args)
	}
}

// withVault opens the vault without authenticating.
func (a *app) withVault(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return a.run(func(cmd *cobra.Command, args []string) error {
		if err := a.open(); err != nil {
			return err
		}
		return fn(cmd, args)
	})
}

// withSession opens the vault and logs in before fn runs. The session key
// is passed to fn and wiped afterwards.
func (a *app) withSession(fn func(cmd *cobra.Command, args []string, key []byte) error) func(*cobra.Command, []string) error {
	return a.withVault(func(cmd *cobra.Command, args []string) error {
		key, err := a.login()
		if err != nil {
			return err
		}
		defer vault.Zeroize(key)
		return fn(cmd, args, key)
	})
}

// login prompts for the master password, and for a code when MFA is active
// and --mfa was not given.
func (a *app) login() ([]byte, error) {
	if !a.auth.IsInitialized() {
		return nil, store.ErrNotInitialized
	}

	password, err := a.prompt.Password("Master password: ")
	if err != nil {
		return nil, err
	}
	return a.loginWith(password)
}

func (a *app) loginWith(password string) ([]byte, error) {
	token := a.mfaToken
	if token == "" {
		status, err := a.auth.Status()
		if err != nil {
			return nil, err
		}
		if status.MFA == domain.MFAActive {
			if token, err = a.prompt.Input("Authenticator or backup code: "); err != nil {
				return nil, err
			}
		}
	}

	return a.auth.Login(password, a.deviceID, token)
}

// confirm asks before destructive operations unless --yes was given or
// confirmation is turned off.
func (a *app) confirm(prompt string) (bool, error) {
	if a.yes || !a.cfg.UI.ConfirmDestructive {
		return true, nil
	}
	return promptConfirm(a.prompt, prompt, false)
}

// writeFile writes exported data with owner-only permissions.
func writeFile(path string, data []byte) error {
	if err := store.AtomicWriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// resolve finds the record named by ref: an exact id, a unique id prefix,
// or a unique website name.
func (a *app) resolve(ref string, key []byte) (*domain.Record, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("%w: empty record reference", domain.ErrValidation)
	}
	records, err := a.records.GetPasswords(key)
	if err != nil {
		return nil, err
	}

	var byPrefix, byWebsite []*domain.Record
	for _, r := range records {
		if r.ID == ref {
			return r, nil
		}
		if strings.HasPrefix(r.ID, ref) {
			byPrefix = append(byPrefix, r)
		}
		if strings.EqualFold(r.Website, ref) {
			byWebsite = append(byWebsite, r)
		}
	}

	for _, matches := range [][]*domain.Record{byPrefix, byWebsite} {
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			return nil, fmt.Errorf("%w: %q matches %d records, use the id", domain.ErrValidation, ref, len(matches))
		}
	}
	return nil, fmt.Errorf("%q: %w", ref, domain.ErrNotFound)
}
