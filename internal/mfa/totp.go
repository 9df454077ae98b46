// Package mfa implements RFC 6238 time-based one-time passwords and the
// single-use backup codes that stand in for them.
package mfa

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
)

const (
	// SecretSize is the number of random bytes behind a generated secret.
	SecretSize = 20
	// Digits is the length of a generated code.
	Digits = 6
	// Period is the TOTP time step.
	Period = 30 * time.Second
)

var (
	// ErrInvalidSecret is returned for secrets that are not valid Base32.
	ErrInvalidSecret = errors.New("invalid TOTP secret")

	b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// Code is a generated one-time code and the seconds left in its step.
type Code struct {
	Value     string `json:"code"`
	ExpiresIn int    `json:"expiresIn"`
}

// Service generates and verifies codes against an injectable clock.
type Service struct {
	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New returns a Service using the wall clock unless overridden.
func New(opts ...Option) *Service {
	s := &Service{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateSecret returns a fresh Base32 secret without padding.
func (s *Service) GenerateSecret() (string, error) {
	raw := make([]byte, SecretSize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return b32NoPadding.EncodeToString(raw), nil
}

// GenerateTOTP returns the code for the current step.
func (s *Service) GenerateTOTP(secret string) (Code, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return Code{}, err
	}

	now := s.now()
	counter := uint64(now.Unix()) / uint64(Period/time.Second)
	elapsed := now.Unix() % int64(Period/time.Second)

	return Code{
		Value:     hotp(key, counter),
		ExpiresIn: int(int64(Period/time.Second) - elapsed),
	}, nil
}

// CodeAt returns the code valid at t.
func (s *Service) CodeAt(secret string, t time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotp(key, uint64(t.Unix())/uint64(Period/time.Second)), nil
}

// VerifyTOTP accepts a code for the previous, current or next step.
//
// Every window is computed and compared in constant time whatever the input,
// and an undecodable secret is verified against a zero key, so the time taken
// does not reveal which part was wrong.
func (s *Service) VerifyTOTP(token, secret string) bool {
	key, err := decodeSecret(secret)
	valid := err == nil
	if !valid {
		key = make([]byte, SecretSize)
	}

	token = strings.TrimSpace(token)
	if len(token) != Digits {
		valid = false
		token = strings.Repeat("0", Digits)
	}

	counter := uint64(s.now().Unix()) / uint64(Period/time.Second)
	match := 0
	for _, c := range []uint64{counter - 1, counter, counter + 1} {
		match |= subtle.ConstantTimeCompare([]byte(hotp(key, c)), []byte(token))
	}

	return valid && match == 1
}

// URI builds the otpauth:// provisioning URI understood by authenticator apps.
func URI(secret, issuer, account string) string {
	label := url.PathEscape(account)
	if issuer != "" {
		label = url.PathEscape(issuer) + ":" + label
	}

	q := url.Values{}
	q.Set("secret", normalizeSecret(secret))
	if issuer != "" {
		q.Set("issuer", issuer)
	}
	q.Set("algorithm", "SHA1")
	q.Set("digits", fmt.Sprint(Digits))
	q.Set("period", fmt.Sprint(int(Period/time.Second)))

	return "otpauth://totp/" + label + "?" + q.Encode()
}

func normalizeSecret(secret string) string {
	secret = strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	return strings.TrimRight(secret, "=")
}

func decodeSecret(secret string) ([]byte, error) {
	normalized := normalizeSecret(secret)
	if normalized == "" {
		return nil, ErrInvalidSecret
	}
	key, err := b32NoPadding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return key, nil
}

// hotp computes the RFC 4226 value for counter.
func hotp(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", Digits, value%1_000_000)
}
