package domain

import "time"

// CredentialVersion is the current layout of the persisted Credential.
const CredentialVersion = 1

// KDFParams mirrors the Argon2id parameters used to derive the vault key.
type KDFParams struct {
	Memory      uint32 `json:"memory"`
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// MFAStatus tags the MFA state of the vault.
type MFAStatus string

const (
	MFANone    MFAStatus = "none"
	MFAPending MFAStatus = "pending"
	MFAActive  MFAStatus = "active"
)

// MFAState is a tagged value: SealedSecret is set for MFAPending and
// MFAActive and holds the Base32 secret encrypted under the vault key.
// A pending secret never gates login.
type MFAState struct {
	Status       MFAStatus `json:"status"`
	SealedSecret []byte    `json:"sealed_secret,omitempty"`
	ActivatedAt  time.Time `json:"activated_at,omitempty"`
}

// Enabled reports whether login requires a second factor.
func (s MFAState) Enabled() bool {
	return s.Status == MFAActive
}

// Credential is the persisted authentication material. It never holds the
// master password, only a verifier derived from the key.
type Credential struct {
	Version     int       `json:"version"`
	KDF         KDFParams `json:"kdf"`
	Verifier    []byte    `json:"verifier"`
	MFA         MFAState  `json:"mfa"`
	BackupCodes []string  `json:"backup_codes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
