// Package auth owns the vault lifecycle: uninitialized, locked and unlocked.
// It is the only package that sets or clears the session key.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vault-cli/ciphora/internal/domain"
	"github.com/vault-cli/ciphora/internal/logger"
	"github.com/vault-cli/ciphora/internal/mfa"
	"github.com/vault-cli/ciphora/internal/session"
	"github.com/vault-cli/ciphora/internal/store"
	"github.com/vault-cli/ciphora/internal/vault"
)

const (
	// MinPasswordLength is the shortest accepted master password.
	MinPasswordLength = 8
	// ResetConfirmation must be typed verbatim to wipe the vault.
	ResetConfirmation = "RESET ALL DATA"
	// DefaultBackupCodeCount is the number of codes issued on MFA activation.
	DefaultBackupCodeCount = 10
)

// State is the lifecycle state of the vault.
type State int

const (
	StateUninitialized State = iota
	StateLocked
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	errNotInitialized     = fmt.Errorf("vault is not initialized: %w", domain.ErrState)
	errAlreadyInitialized = fmt.Errorf("vault is already initialized: %w", domain.ErrState)
	errAlreadyUnlocked    = fmt.Errorf("vault is already unlocked: %w", domain.ErrState)
	errNotUnlocked        = fmt.Errorf("vault is locked: %w", domain.ErrState)
	errKeyMismatch        = fmt.Errorf("session key does not match the vault: %w", domain.ErrIntegrity)
)

// MFASetup is returned by SetupMFA for enrollment in an authenticator app.
type MFASetup struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// Status summarizes the credential for display.
type Status struct {
	State                State            `json:"-"`
	MFA                  domain.MFAStatus `json:"mfa"`
	BackupCodesRemaining int              `json:"backupCodesRemaining"`
	KDF                  domain.KDFParams `json:"kdf"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// Service implements the authentication state machine.
type Service struct {
	store  store.Store
	engine *vault.CryptoEngine
	totp   *mfa.Service
	keeper *session.Keeper
	log    *logger.Logger
	issuer string
	nCodes int
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithIssuer sets the issuer shown by authenticator apps.
func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

// WithBackupCodeCount sets how many backup codes MFA activation issues.
func WithBackupCodeCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.nCodes = n
		}
	}
}

// WithClock replaces time.Now for credential timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the auth service. engine's parameters are used for keys
// derived on Initialize and ChangeMasterPassword; Login uses the parameters
// recorded in the credential.
func NewService(st store.Store, engine *vault.CryptoEngine, totp *mfa.Service, keeper *session.Keeper, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		engine: engine,
		totp:   totp,
		keeper: keeper,
		log:    log.Component("auth"),
		issuer: "Ciphora",
		nCodes: DefaultBackupCodeCount,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsInitialized reports whether a vault exists. It never fails.
func (s *Service) IsInitialized() bool {
	return s.store.IsInitialized()
}

// State derives the lifecycle state from the store and the session keeper.
func (s *Service) State() State {
	switch {
	case !s.store.IsInitialized():
		return StateUninitialized
	case s.keeper.Unlocked():
		return StateUnlocked
	default:
		return StateLocked
	}
}

// Status reports MFA and credential details. It does not require unlocking.
func (s *Service) Status() (*Status, error) {
	st := &Status{State: s.State(), MFA: domain.MFANone}
	if st.State == StateUninitialized {
		return st, nil
	}
	err := s.store.View(func(tx store.Tx) error {
		cred, err := tx.Credential()
		if err != nil {
			return err
		}
		if cred.MFA.Status != "" {
			st.MFA = cred.MFA.Status
		}
		st.BackupCodesRemaining = len(cred.BackupCodes)
		st.KDF = cred.KDF
		st.CreatedAt = cred.CreatedAt
		st.UpdatedAt = cred.UpdatedAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Initialize creates the credential and an empty vault, unlocks the session
// and returns the new session key.
func (s *Service) Initialize(password, deviceID string) (key []byte, err error) {
	defer func() { s.audit("initialize", "", err) }()

	if s.store.IsInitialized() {
		return nil, errAlreadyInitialized
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	key, err = s.engine.DeriveKey(password, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	verifier, err := vault.Verifier(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := domain.NewContainer(nil).Marshal()
	if err != nil {
		return nil, err
	}
	container, err := s.engine.Encrypt(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("failed to seal container: %w", err)
	}

	now := s.now().UTC()
	cred := &domain.Credential{
		Version:   domain.CredentialVersion,
		KDF:       s.engine.Params(),
		Verifier:  verifier,
		MFA:       domain.MFAState{Status: domain.MFANone},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.store.Update(func(tx store.Tx) error {
		if _, err := tx.Credential(); err == nil {
			return errAlreadyInitialized
		}
		if err := tx.PutContainer(container); err != nil {
			return err
		}
		return tx.PutCredential(cred)
	})
	if err != nil {
		vault.Zeroize(key)
		return nil, err
	}

	s.keeper.SetKey(key)
	s.keeper.SetDeviceID(deviceID)
	s.log.Info().Msg("vault initialized")
	return key, nil
}

// Login verifies the password and, when MFA is active, the TOTP token or an
// unused backup code. The vault stays locked on any failure.
func (s *Service) Login(password, deviceID, mfaToken string) (key []byte, err error) {
	defer func() { s.audit("login", "", err) }()

	if !s.store.IsInitialized() {
		return nil, errNotInitialized
	}
	if s.keeper.Unlocked() {
		return nil, errAlreadyUnlocked
	}

	var cred *domain.Credential
	err = s.store.View(func(tx store.Tx) error {
		var err error
		cred, err = tx.Credential()
		return err
	})
	if err != nil {
		return nil, err
	}

	key, err = s.engine.WithParams(cred.KDF).DeriveKey(password, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	if !s.verify(cred, key) {
		vault.Zeroize(key)
		return nil, domain.ErrAuthentication
	}

	if cred.MFA.Enabled() {
		if err := s.checkSecondFactor(cred, key, mfaToken); err != nil {
			vault.Zeroize(key)
			return nil, err
		}
	}

	s.keeper.SetKey(key)
	s.keeper.SetDeviceID(deviceID)
	s.log.Info().Bool("mfa", cred.MFA.Enabled()).Msg("vault unlocked")
	return key, nil
}

// checkSecondFactor accepts a TOTP for the stored secret or consumes a
// backup code.
func (s *Service) checkSecondFactor(cred *domain.Credential, key []byte, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrMFARequired
	}

	secret, err := s.engine.Decrypt(cred.MFA.SealedSecret, key)
	if err != nil {
		return fmt.Errorf("failed to open MFA secret: %w", err)
	}
	defer vault.Zeroize(secret)

	if s.totp.VerifyTOTP(token, string(secret)) {
		return nil
	}

	if mfa.MatchBackupCode(token, cred.BackupCodes) < 0 {
		return domain.ErrMFAInvalid
	}
	return s.consumeBackupCode(token)
}

func (s *Service) consumeBackupCode(code string) error {
	err := s.store.Update(func(tx store.Tx) error {
		cred, err := tx.Credential()
		if err != nil {
			return err
		}
		idx := mfa.MatchBackupCode(code, cred.BackupCodes)
		if idx < 0 {
			// used concurrently
			return domain.ErrMFAInvalid
		}
		cred.BackupCodes = append(cred.BackupCodes[:idx], cred.BackupCodes[idx+1:]...)
		cred.UpdatedAt = s.now().UTC()
		return tx.PutCredential(cred)
	})
	if err == nil {
		s.log.Warn().Msg("backup code used for login")
	}
	return err
}

// Logout wipes the session key.
func (s *Service) Logout() (err error) {
	defer func() { s.audit("logout", "", err) }()

	if !s.keeper.Unlocked() {
		return errNotUnlocked
	}
	s.keeper.Clear()
	s.log.Info().Msg("vault locked")
	return nil
}

// ChangeMasterPassword re-authenticates oldPassword, re-encrypts the vault
// and the MFA secret under a key derived from newPassword and replaces the
// verifier, all in one transaction. The session switches to the new key only
// after the commit; on failure nothing changes.
func (s *Service) ChangeMasterPassword(oldPassword, newPassword, deviceID string, currentKey []byte) (newKey []byte, err error) {
	defer func() { s.audit("change_master_password", "", err) }()

	if !s.keeper.Unlocked() {
		return nil, errNotUnlocked
	}
	if err := ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	err = s.store.Update(func(tx store.Tx) error {
		cred, err := tx.Credential()
		if err != nil {
			return err
		}

		oldKey, err := s.engine.WithParams(cred.KDF).DeriveKey(oldPassword, deviceID)
		if err != nil {
			return fmt.Errorf("failed to derive key: %w", err)
		}
		ok := s.verify(cred, oldKey)
		vault.Zeroize(oldKey)
		if !ok {
			return domain.ErrAuthentication
		}
		if !s.verify(cred, currentKey) {
			return errKeyMismatch
		}

		sealed, err := tx.Container()
		if err != nil {
			return err
		}
		plaintext, err := s.engine.Decrypt(sealed, currentKey)
		if err != nil {
			return err
		}
		defer vault.Zeroize(plaintext)

		newKey, err = s.engine.DeriveKey(newPassword, deviceID)
		if err != nil {
			return fmt.Errorf("failed to derive key: %w", err)
		}

		resealed, err := s.engine.Encrypt(plaintext, newKey)
		if err != nil {
			return err
		}

		if len(cred.MFA.SealedSecret) > 0 {
			secret, err := s.engine.Decrypt(cred.MFA.SealedSecret, currentKey)
			if err != nil {
				return fmt.Errorf("failed to open MFA secret: %w", err)
			}
			cred.MFA.SealedSecret, err = s.engine.Encrypt(secret, newKey)
			vault.Zeroize(secret)
			if err != nil {
				return err
			}
		}

		if cred.Verifier, err = vault.Verifier(newKey); err != nil {
			return err
		}
		cred.KDF = s.engine.Params()
		cred.UpdatedAt = s.now().UTC()

		if err := tx.PutContainer(resealed); err != nil {
			return err
		}
		return tx.PutCredential(cred)
	})
	if err != nil {
		if newKey != nil {
			vault.Zeroize(newKey)
		}
		return nil, err
	}

	s.keeper.SetKey(newKey)
	s.log.Info().Msg("master password changed")
	return newKey, nil
}

// SetupMFA stages a fresh secret as pending. It does not affect login until
// VerifyMFA confirms it. Fails with ErrState while MFA is active.
func (s *Service) SetupMFA(deviceID string, currentKey []byte) (setup *MFASetup, err error) {
	defer func() { s.audit("mfa_setup", "", err) }()

	if !s.keeper.Unlocked() {
		return nil, errNotUnlocked
	}

	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	err = s.store.Update(func(tx store.Tx) error {
		cred, err := tx.Credential()
		if err != nil {
			return err
		}
		if cred.MFA.Enabled() {
			return fmt.Errorf("MFA is already active, disable it first: %w", domain.ErrState)
		}
		if !s.verify(cred, currentKey) {
			return errKeyMismatch
		}

		sealed, err := s.engine.Encrypt([]byte(secret), currentKey)
		if err != nil {
			return err
		}
		cred.MFA = domain.MFAState{Status: domain.MFAPending, SealedSecret: sealed}
		cred.UpdatedAt = s.now().UTC()
		return tx.PutCredential(cred)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Msg("mfa secret staged")
	return &MFASetup{
		Secret: secret,
		URI:    mfa.URI(secret, s.issuer, accountName(deviceID)),
	}, nil
}

// VerifyMFA activates the pending secret when secret matches it and token is
// a valid code for it. It returns the new backup codes, shown only once. On
// failure the pending state is kept.
func (s *Service) VerifyMFA(token, secret string) (codes []string, err error) {
	defer func() { s.audit("mfa_verify", "", err) }()

	key, ok := s.keeper.Key()
	if !ok {
		return nil, errNotUnlocked
	}
	defer vault.Zeroize(key)

	err = s.store.Update(func(tx store.Tx) error {
		cred, err := tx.Credential()
		if err != nil {
			return err
		}
		if cred.MFA.Status != domain.MFAPending {
			return fmt.Errorf("no MFA setup is pending: %w", domain.ErrState)
		}

		staged, err := s.engine.Decrypt(cred.MFA.SealedSecret, key)
		if err != nil {
			return fmt.Errorf("failed to open MFA secret: %w", err)
		}
		defer vault.Zeroize(staged)

		same := vault.SecureCompare(staged, []byte(normalizeSecret(secret)))
		valid := s.totp.VerifyTOTP(token, string(staged))
		if !same || !valid {
			return domain.ErrMFAInvalid
		}

		codes, err = mfa.GenerateBackupCodes(s.nCodes)
		if err != nil {
			return err
		}
		hashes := make([]string, len(codes))
		for i, c := range codes {
			hashes[i] = mfa.HashBackupCode(c)
		}

		now := s.now().UTC()
		cred.MFA.Status = domain.MFAActive
		cred.MFA.ActivatedAt = now
		cred.BackupCodes = hashes
		cred.UpdatedAt = now
		return tx.PutCredential(cred)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int("backup_codes", len(codes)).Msg("mfa activated")
	return codes, nil
}

// DisableMFA turns MFA off. An active configuration requires a valid TOTP or
// backup code; a pending one is simply discarded.
func (s *Service) DisableMFA(token string, currentKey []byte) (err error) {
	defer func() { s.audit("mfa_disable", "", err) }()

	if !s.keeper.Unlocked() {
		return errNotUnlocked
	}

	err = s.store.Update(func(tx store.Tx) error {
		cred, err := tx.Credential()
		if err != nil {
			return err
		}
		if !s.verify(cred, currentKey) {
			return errKeyMismatch
		}

		switch cred.MFA.Status {
		case domain.MFAActive:
			if strings.TrimSpace(token) == "" {
				return domain.ErrMFARequired
			}
			secret, err := s.engine.Decrypt(cred.MFA.SealedSecret, currentKey)
			if err != nil {
				return fmt.Errorf("failed to open MFA secret: %w", err)
			}
			valid := s.totp.VerifyTOTP(token, string(secret))
			vault.Zeroize(secret)
			if !valid && mfa.MatchBackupCode(token, cred.BackupCodes) < 0 {
				return domain.ErrMFAInvalid
			}
		case domain.MFAPending:
		default:
			return fmt.Errorf("MFA is not enabled: %w", domain.ErrState)
		}

		cred.MFA = domain.MFAState{Status: domain.MFANone}
		cred.BackupCodes = nil
		cred.UpdatedAt = s.now().UTC()
		return tx.PutCredential(cred)
	})
	if err != nil {
		return err
	}

	s.log.Info().Msg("mfa disabled")
	return nil
}

// Reset wipes the credential, the vault and the audit log and locks the
// session. confirmText must equal ResetConfirmation.
func (s *Service) Reset(confirmText string) error {
	if confirmText != ResetConfirmation {
		err := fmt.Errorf("%w: type %q to confirm", domain.ErrValidation, ResetConfirmation)
		s.audit("reset", "confirmation mismatch", err)
		return err
	}

	if err := s.store.Wipe(); err != nil {
		s.audit("reset", "", err)
		return fmt.Errorf("failed to wipe vault: %w", err)
	}
	s.keeper.Clear()

	s.log.Warn().Msg("vault reset")
	s.audit("reset", "", nil)
	return nil
}

// ValidatePassword enforces the master password policy.
func ValidatePassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: password cannot be empty", domain.ErrValidation)
	}
	if len([]rune(password)) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, MinPasswordLength)
	}
	return nil
}

func (s *Service) verify(cred *domain.Credential, key []byte) bool {
	candidate, err := vault.Verifier(key)
	if err != nil {
		return false
	}
	return vault.SecureCompare(candidate, cred.Verifier)
}

func (s *Service) audit(op, detail string, err error) {
	if err != nil {
		s.log.Warn().Str("op", op).Err(err).Msg("auth operation failed")
		if detail == "" {
			detail = err.Error()
		}
	}
	logErr := s.store.LogOperation(&domain.Operation{
		Type:      op,
		Detail:    detail,
		Timestamp: s.now().UTC(),
		Success:   err == nil,
	})
	if logErr != nil && !errors.Is(logErr, store.ErrClosed) {
		s.log.Error().Err(logErr).Str("op", op).Msg("failed to write audit entry")
	}
}

func normalizeSecret(secret string) string {
	return strings.TrimRight(strings.ToUpper(strings.ReplaceAll(secret, " ", "")), "=")
}

func accountName(deviceID string) string {
	if len(deviceID) > 8 {
		deviceID = deviceID[:8]
	}
	return "vault-" + deviceID
}
