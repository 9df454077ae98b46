package vault

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-cli/ciphora/internal/domain"
)

// fastParams keeps Argon2id cheap enough for unit tests.
var fastParams = Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}

func testEngine() *CryptoEngine {
	return NewCryptoEngine(fastParams)
}

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := testEngine().DeriveKey("correct horse battery staple", "device-test")
	require.NoError(t, err)
	return key
}

func TestGenerateSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, salt1, SaltSize)

	salt2, err := GenerateSalt()
	require.NoError(t, err)
	assert.NotEqual(t, salt1, salt2, "generated salts should differ")
}

func TestGenerateNonce(t *testing.T) {
	nonce1, err := GenerateNonce()
	require.NoError(t, err)
	assert.Len(t, nonce1, NonceSize)

	nonce2, err := GenerateNonce()
	require.NoError(t, err)
	assert.NotEqual(t, nonce1, nonce2, "generated nonces should differ")
}

func TestDeriveKey(t *testing.T) {
	engine := testEngine()

	key1, err := engine.DeriveKey("Tr0ub4dor&3", "dev-1")
	require.NoError(t, err)
	assert.Len(t, key1, KeySize)

	key2, err := engine.DeriveKey("Tr0ub4dor&3", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, key1, key2, "same inputs should produce the same key")

	otherPassword, err := engine.DeriveKey("Tr0ub4dor&4", "dev-1")
	require.NoError(t, err)
	assert.NotEqual(t, key1, otherPassword)

	otherDevice, err := engine.DeriveKey("Tr0ub4dor&3", "dev-2")
	require.NoError(t, err)
	assert.NotEqual(t, key1, otherDevice)
}

func TestDeriveKeyRejectsEmptyDevice(t *testing.T) {
	_, err := testEngine().DeriveKey("password", "")
	assert.ErrorIs(t, err, ErrEmptyDeviceID)
}

func TestDeriveKeyRejectsBadParams(t *testing.T) {
	engine := NewCryptoEngine(Argon2Params{Memory: 8, Iterations: 1, Parallelism: 1})
	_, err := engine.DeriveKey("password", "dev-1")
	assert.Error(t, err)
}

func TestDeviceSalt(t *testing.T) {
	assert.Len(t, DeviceSalt("dev-1"), SaltSize)
	assert.Equal(t, DeviceSalt("dev-1"), DeviceSalt("dev-1"))
	assert.NotEqual(t, DeviceSalt("dev-1"), DeviceSalt("dev-2"))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	engine := testEngine()
	key := testKey(t)

	cases := map[string][]byte{
		"empty":  {},
		"short":  []byte("p@ss"),
		"json":   []byte(`{"version":1,"records":[]}`),
		"binary": bytes.Repeat([]byte{0x00, 0xff, 0x10}, 4096),
	}

	for name, plaintext := range cases {
		t.Run(name, func(t *testing.T) {
			envelope, err := engine.Encrypt(plaintext, key)
			require.NoError(t, err)

			got, err := engine.Decrypt(envelope, key)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(plaintext, got))
		})
	}
}

func TestEncryptFreshNonce(t *testing.T) {
	engine := testEngine()
	key := testKey(t)
	plaintext := []byte("same input twice")

	first, err := engine.Encrypt(plaintext, key)
	require.NoError(t, err)
	second, err := engine.Encrypt(plaintext, key)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "two encryptions must not produce the same envelope")
}

func TestDecryptWrongKey(t *testing.T) {
	engine := testEngine()
	key := testKey(t)

	envelope, err := engine.Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	wrong, err := engine.DeriveKey("another password", "device-test")
	require.NoError(t, err)

	_, err = engine.Decrypt(envelope, wrong)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.ErrorIs(t, err, domain.ErrIntegrity)
	assert.False(t, errors.Is(err, domain.ErrFormat))
}

func TestDecryptTampered(t *testing.T) {
	engine := testEngine()
	key := testKey(t)

	data, err := engine.Encrypt([]byte("tamper target"), key)
	require.NoError(t, err)

	envelope, err := EnvelopeFromBytes(data)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(e *Envelope)
	}{
		{"ciphertext", func(e *Envelope) { e.Ciphertext[0] ^= 0x01 }},
		{"tag", func(e *Envelope) { e.Tag[len(e.Tag)-1] ^= 0x80 }},
		{"nonce", func(e *Envelope) { e.Nonce[3] ^= 0x02 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			copied, err := EnvelopeFromBytes(EnvelopeToBytes(envelope))
			require.NoError(t, err)
			tt.mutate(copied)

			_, err = engine.Decrypt(EnvelopeToBytes(copied), key)
			assert.ErrorIs(t, err, domain.ErrIntegrity)
		})
	}
}

func TestDecryptMalformed(t *testing.T) {
	engine := testEngine()
	key := testKey(t)

	data, err := engine.Encrypt([]byte("format checks"), key)
	require.NoError(t, err)

	unknownVersion := append([]byte(nil), data...)
	unknownVersion[0] = EnvelopeVersion + 1

	tests := map[string][]byte{
		"nil":             nil,
		"short":           data[:5],
		"truncated":       data[:len(data)-1],
		"trailing":        append(append([]byte(nil), data...), 0x00),
		"unknown version": unknownVersion,
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := engine.Decrypt(input, key)
			assert.ErrorIs(t, err, domain.ErrFormat)
		})
	}
}

func TestInvalidKeySize(t *testing.T) {
	engine := testEngine()

	_, err := engine.Encrypt([]byte("x"), make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = engine.Decrypt([]byte("x"), make([]byte, 16))
	assert.Error(t, err)
}

func TestSealOpenWithPassphrase(t *testing.T) {
	engine := testEngine()
	plaintext := []byte("backup payload")

	envelope, err := engine.SealWithPassphrase(plaintext, "backupPW")
	require.NoError(t, err)
	assert.Len(t, envelope.Salt, SaltSize)
	assert.Equal(t, fastParams, envelope.KDFParams)

	// A different engine opens it using only the header.
	restored, err := EnvelopeFromBytes(EnvelopeToBytes(envelope))
	require.NoError(t, err)

	got, err := NewDefaultCryptoEngine().OpenWithPassphrase(restored, "backupPW")
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	_, err = engine.OpenWithPassphrase(restored, "wrongPW")
	assert.ErrorIs(t, err, domain.ErrIntegrity)
}

func TestOpenWithPassphraseMissingSalt(t *testing.T) {
	engine := testEngine()
	envelope, err := engine.Seal([]byte("x"), testKey(t))
	require.NoError(t, err)

	_, err = engine.OpenWithPassphrase(envelope, "anything")
	assert.ErrorIs(t, err, domain.ErrFormat)
}

func TestVerifier(t *testing.T) {
	key := testKey(t)

	v1, err := Verifier(key)
	require.NoError(t, err)
	assert.Len(t, v1, KeySize)
	assert.NotEqual(t, key, v1, "verifier must not equal the key")

	v2, err := Verifier(key)
	require.NoError(t, err)
	assert.True(t, SecureCompare(v1, v2))

	other, err := testEngine().DeriveKey("other", "device-test")
	require.NoError(t, err)
	v3, err := Verifier(other)
	require.NoError(t, err)
	assert.False(t, SecureCompare(v1, v3))

	_, err = Verifier([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestZeroize(t *testing.T) {
	data := []byte("sensitive data")
	Zeroize(data)
	assert.Equal(t, make([]byte, len(data)), data)
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, SecureCompare([]byte("hello"), []byte("hello")))
	assert.False(t, SecureCompare([]byte("hello"), []byte("world")))
	assert.False(t, SecureCompare([]byte("hello"), []byte("hello!")))
}

func TestValidateArgon2Params(t *testing.T) {
	tests := []struct {
		name    string
		params  Argon2Params
		wantErr bool
	}{
		{"defaults", DefaultArgon2Params(), false},
		{"fast", fastParams, false},
		{"memory too low", Argon2Params{Memory: 512, Iterations: 3, Parallelism: 4}, true},
		{"memory too high", Argon2Params{Memory: 2 * 1024 * 1024, Iterations: 3, Parallelism: 4}, true},
		{"no iterations", Argon2Params{Memory: 65536, Iterations: 0, Parallelism: 4}, true},
		{"too many iterations", Argon2Params{Memory: 65536, Iterations: 101, Parallelism: 4}, true},
		{"no parallelism", Argon2Params{Memory: 65536, Iterations: 3, Parallelism: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArgon2Params(tt.params)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
