package domain

import "errors"

// Error taxonomy shared by every service. Callers match with errors.Is;
// services wrap these with context using %w.
var (
	// ErrAuthentication is returned when the master password is wrong.
	ErrAuthentication = errors.New("password incorrect")
	// ErrMFARequired is returned when the password is correct but no MFA token was given.
	ErrMFARequired = errors.New("mfa token required")
	// ErrMFAInvalid is returned when the MFA token (or backup code) does not verify.
	ErrMFAInvalid = errors.New("mfa token invalid")
	// ErrIntegrity is returned when authenticated decryption fails: tampering or a wrong key.
	ErrIntegrity = errors.New("integrity error")
	// ErrFormat is returned when an envelope or document is malformed or of an unknown version.
	ErrFormat = errors.New("malformed data")
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrValidation is returned for malformed input records, import files or settings.
	ErrValidation = errors.New("validation error")
	// ErrState is returned when an operation is invalid for the current lifecycle state.
	ErrState = errors.New("invalid vault state")
)
