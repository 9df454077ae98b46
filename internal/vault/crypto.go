// Package vault implements the encryption service: Argon2id key derivation
// bound to a device identifier, AES-256-GCM envelopes and their binary codec.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/vault-cli/ciphora/internal/domain"
)

const (
	// Crypto constants
	KeySize   = 32 // AES-256 key size
	SaltSize  = 32 // Salt size for Argon2id
	NonceSize = 12 // GCM nonce size
	TagSize   = 16 // GCM tag size

	// Envelope version
	EnvelopeVersion = 1

	// Default Argon2id parameters (tuned for ~300ms on modern hardware)
	DefaultArgon2Memory      = 64 * 1024 // 64 MB
	DefaultArgon2Iterations  = 3
	DefaultArgon2Parallelism = 4

	deviceSaltLabel = "ciphora/device-salt/v1\x00"
	verifierInfo    = "ciphora/auth-verifier/v1"
)

var (
	ErrInvalidEnvelope  = fmt.Errorf("invalid envelope format: %w", domain.ErrFormat)
	ErrInvalidVersion   = fmt.Errorf("unsupported envelope version: %w", domain.ErrFormat)
	ErrDecryptionFailed = fmt.Errorf("decryption failed: %w", domain.ErrIntegrity)
	ErrInvalidKeySize   = fmt.Errorf("invalid key size: %w", domain.ErrIntegrity)
	ErrEmptyDeviceID    = errors.New("device identifier is empty")
	ErrMissingSalt      = fmt.Errorf("envelope missing salt: %w", domain.ErrFormat)
)

// Argon2Params holds the key derivation parameters
type Argon2Params = domain.KDFParams

// DefaultArgon2Params returns the default Argon2id parameters
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      DefaultArgon2Memory,
		Iterations:  DefaultArgon2Iterations,
		Parallelism: DefaultArgon2Parallelism,
	}
}

// Envelope is the self-describing unit of ciphertext: version, the KDF
// parameters and salt needed to re-derive a passphrase key (salt is empty for
// device-bound keys), a fresh nonce, the ciphertext and the GCM tag.
type Envelope struct {
	Version    uint8
	KDFParams  Argon2Params
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

// CryptoEngine handles all cryptographic operations
type CryptoEngine struct {
	params Argon2Params
}

// NewCryptoEngine creates a new crypto engine with specified parameters
func NewCryptoEngine(params Argon2Params) *CryptoEngine {
	return &CryptoEngine{
		params: params,
	}
}

// NewDefaultCryptoEngine creates a new crypto engine with default parameters
func NewDefaultCryptoEngine() *CryptoEngine {
	return NewCryptoEngine(DefaultArgon2Params())
}

// Params returns the KDF parameters new keys are derived with.
func (ce *CryptoEngine) Params() Argon2Params {
	return ce.params
}

// WithParams returns an engine using params, e.g. the ones recorded in a
// stored credential.
func (ce *CryptoEngine) WithParams(params Argon2Params) *CryptoEngine {
	return NewCryptoEngine(params)
}

// GenerateSalt creates a cryptographically secure random salt
func GenerateSalt() ([]byte, error) {
	return randomBytes(SaltSize)
}

// GenerateNonce creates a cryptographically secure random nonce
func GenerateNonce() ([]byte, error) {
	return randomBytes(NonceSize)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

// DeviceSalt maps a device identifier to the fixed-size Argon2id salt that
// binds derived keys to one installation.
func DeviceSalt(deviceID string) []byte {
	sum := sha256.Sum256([]byte(deviceSaltLabel + deviceID))
	return sum[:]
}

// DeriveKey derives the vault key from the master password and the device
// identifier. Same inputs always give the same key.
func (ce *CryptoEngine) DeriveKey(password, deviceID string) ([]byte, error) {
	if deviceID == "" {
		return nil, ErrEmptyDeviceID
	}
	return ce.deriveWithSalt(password, DeviceSalt(deviceID))
}

func (ce *CryptoEngine) deriveWithSalt(passphrase string, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("invalid salt size: expected %d, got %d", SaltSize, len(salt))
	}
	if err := ValidateArgon2Params(ce.params); err != nil {
		return nil, err
	}

	return argon2.IDKey(
		[]byte(passphrase),
		salt,
		ce.params.Iterations,
		ce.params.Memory,
		ce.params.Parallelism,
		KeySize,
	), nil
}

// Verifier derives the login verifier from a vault key. The verifier can be
// stored: it reveals nothing about the key and is domain separated from it.
func Verifier(key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(verifierInfo)), out); err != nil {
		return nil, fmt.Errorf("failed to derive verifier: %w", err)
	}
	return out, nil
}

// Seal encrypts plaintext using AES-256-GCM
func (ce *CryptoEngine) Seal(plaintext []byte, key []byte) (*Envelope, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagSize

	return &Envelope{
		Version:    EnvelopeVersion,
		KDFParams:  ce.params,
		Nonce:      nonce,
		Ciphertext: sealed[:split],
		Tag:        sealed[split:],
	}, nil
}

// Open decrypts ciphertext using AES-256-GCM
func (ce *CryptoEngine) Open(envelope *Envelope, key []byte) ([]byte, error) {
	if envelope == nil {
		return nil, ErrInvalidEnvelope
	}
	if envelope.Version != EnvelopeVersion {
		return nil, ErrInvalidVersion
	}
	if len(envelope.Nonce) != NonceSize || len(envelope.Tag) != TagSize {
		return nil, ErrInvalidEnvelope
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(envelope.Ciphertext)+TagSize)
	sealed = append(sealed, envelope.Ciphertext...)
	sealed = append(sealed, envelope.Tag...)

	plaintext, err := gcm.Open(nil, envelope.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// Encrypt seals plaintext under key and returns the serialized envelope.
// Every call uses a fresh nonce, so equal inputs give different outputs.
func (ce *CryptoEngine) Encrypt(plaintext, key []byte) ([]byte, error) {
	envelope, err := ce.Seal(plaintext, key)
	if err != nil {
		return nil, err
	}
	return EnvelopeToBytes(envelope), nil
}

// Decrypt parses a serialized envelope and opens it with key. Malformed input
// fails with a format error, a wrong key or tampering with an integrity error.
func (ce *CryptoEngine) Decrypt(data, key []byte) ([]byte, error) {
	envelope, err := EnvelopeFromBytes(data)
	if err != nil {
		return nil, err
	}
	return ce.Open(envelope, key)
}

// SealWithPassphrase encrypts plaintext with a passphrase (generates new salt)
func (ce *CryptoEngine) SealWithPassphrase(plaintext []byte, passphrase string) (*Envelope, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}

	key, err := ce.deriveWithSalt(passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer Zeroize(key)

	envelope, err := ce.Seal(plaintext, key)
	if err != nil {
		return nil, err
	}

	envelope.Salt = salt
	return envelope, nil
}

// OpenWithPassphrase decrypts ciphertext with a passphrase
func (ce *CryptoEngine) OpenWithPassphrase(envelope *Envelope, passphrase string) ([]byte, error) {
	if envelope == nil {
		return nil, ErrInvalidEnvelope
	}
	if len(envelope.Salt) == 0 {
		return nil, ErrMissingSalt
	}

	// Use the KDF parameters from the envelope
	engine := NewCryptoEngine(envelope.KDFParams)
	key, err := engine.deriveWithSalt(passphrase, envelope.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	defer Zeroize(key)

	return engine.Open(envelope, key)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Zeroize securely clears a byte slice
func Zeroize(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// SecureCompare performs constant-time comparison of two byte slices
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ValidateArgon2Params validates Argon2id parameters
func ValidateArgon2Params(params Argon2Params) error {
	if params.Memory < 1024 {
		return errors.New("memory parameter too low (minimum 1024 KB)")
	}
	if params.Memory > 1024*1024 {
		return errors.New("memory parameter too high (maximum 1 GB)")
	}
	if params.Iterations < 1 {
		return errors.New("iterations parameter too low (minimum 1)")
	}
	if params.Iterations > 100 {
		return errors.New("iterations parameter too high (maximum 100)")
	}
	if params.Parallelism < 1 {
		return errors.New("parallelism parameter too low (minimum 1)")
	}
	return nil
}
