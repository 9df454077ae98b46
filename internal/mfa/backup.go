package mfa

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/vault-cli/ciphora/internal/crypto"
)

// BackupCodeLength is the number of characters in a backup code, excluding
// the separator.
const BackupCodeLength = 10

// GenerateBackupCodes returns n fresh codes formatted as XXXXX-XXXXX.
func GenerateBackupCodes(n int) ([]string, error) {
	if n <= 0 {
		return nil, errors.New("backup code count must be positive")
	}

	codes := make([]string, 0, n)
	seen := make(map[string]bool, n)
	for len(codes) < n {
		raw, err := crypto.GeneratePassword(BackupCodeLength, crypto.CharsetBackupCode)
		if err != nil {
			return nil, err
		}
		if seen[raw] {
			continue
		}
		seen[raw] = true
		codes = append(codes, raw[:BackupCodeLength/2]+"-"+raw[BackupCodeLength/2:])
	}
	return codes, nil
}

// HashBackupCode returns the storable hash of a code. Case, spaces and
// dashes are ignored.
func HashBackupCode(code string) string {
	normalized := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(code)))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// MatchBackupCode returns the index of code among hashes, or -1. Every hash
// is compared.
func MatchBackupCode(code string, hashes []string) int {
	candidate := []byte(HashBackupCode(code))
	found := -1
	for i, h := range hashes {
		if subtle.ConstantTimeCompare(candidate, []byte(h)) == 1 {
			found = i
		}
	}
	return found
}
