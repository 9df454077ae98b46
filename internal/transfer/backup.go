package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vault-cli/ciphora/internal/domain"
	"github.com/vault-cli/ciphora/internal/passwords"
	"github.com/vault-cli/ciphora/internal/store"
	"github.com/vault-cli/ciphora/internal/vault"
)

// BackupVersion is the version of the backup document.
const BackupVersion = 1

// ErrBackupPassword is returned when a backup does not open with the given
// password. It matches domain.ErrIntegrity, like a failure of the vault key,
// but only this sentinel identifies the backup password as the cause.
var ErrBackupPassword = fmt.Errorf("backup password incorrect: %w", domain.ErrIntegrity)

// RestoreMode selects how a backup is applied.
type RestoreMode string

const (
	// RestoreReplace swaps the vault contents for the backup.
	RestoreReplace RestoreMode = "replace"
	// RestoreMerge adds backup records, replacing vault records with the
	// same id.
	RestoreMerge RestoreMode = "merge"
)

// ParseRestoreMode validates a mode name; empty means replace.
func ParseRestoreMode(name string) (RestoreMode, error) {
	switch m := RestoreMode(strings.ToLower(strings.TrimSpace(name))); m {
	case "":
		return RestoreReplace, nil
	case RestoreReplace, RestoreMerge:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown restore mode %q", domain.ErrValidation, name)
}

// backupDocument is self-contained: the envelope carries salt and KDF
// parameters, so only the backup password is needed to restore.
type backupDocument struct {
	Format    Format    `json:"format"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	Count     int       `json:"count"`
	Payload   []byte    `json:"payload"`
}

// RestoreResult reports what a restore changed.
type RestoreResult struct {
	Mode      RestoreMode `json:"mode"`
	Restored  int         `json:"restored"`
	Replaced  int         `json:"replaced"`
	Total     int         `json:"total"`
	CreatedAt time.Time   `json:"createdAt"`
}

// CreateBackup seals every record under backupPassword, independent of the
// device and the master password.
func (s *Service) CreateBackup(backupPassword string, key []byte) ([]byte, error) {
	if strings.TrimSpace(backupPassword) == "" {
		return nil, fmt.Errorf("%w: backup password cannot be empty", domain.ErrValidation)
	}

	records, err := s.records(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := domain.NewContainer(records).Marshal()
	if err != nil {
		return nil, err
	}
	defer vault.Zeroize(plaintext)

	envelope, err := s.engine.SealWithPassphrase(plaintext, backupPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to seal backup: %w", err)
	}

	doc := backupDocument{
		Format:    FormatBackup,
		Version:   BackupVersion,
		CreatedAt: s.now().UTC(),
		Count:     len(records),
		Payload:   vault.EnvelopeToBytes(envelope),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}

	s.log.Info().Int("count", doc.Count).Msg("backup created")
	return data, nil
}

// RestoreBackup decrypts a backup and applies it in one transaction. A wrong
// backup password fails with ErrBackupPassword and a malformed document with
// ErrFormat; the vault is untouched in both cases.
func (s *Service) RestoreBackup(data []byte, backupPassword string, key []byte, mode RestoreMode) (*RestoreResult, error) {
	if mode == "" {
		mode = RestoreReplace
	}
	if _, err := ParseRestoreMode(string(mode)); err != nil {
		return nil, err
	}

	doc, err := parseBackup(data)
	if err != nil {
		return nil, err
	}

	envelope, err := vault.EnvelopeFromBytes(doc.Payload)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.engine.OpenWithPassphrase(envelope, backupPassword)
	if errors.Is(err, domain.ErrIntegrity) {
		return nil, ErrBackupPassword
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer vault.Zeroize(plaintext)

	backup, err := domain.UnmarshalContainer(plaintext)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(backup.Records))
	for i, r := range backup.Records {
		if r == nil || r.ID == "" {
			return nil, fmt.Errorf("%w: backup record %d has no id", domain.ErrFormat, i+1)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: backup record %d repeats id %s", domain.ErrFormat, i+1, r.ID)
		}
		seen[r.ID] = true
		r.Normalize()
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: backup record %d: %v", domain.ErrFormat, i+1, err)
		}
	}

	result := &RestoreResult{Mode: mode, CreatedAt: doc.CreatedAt}
	err = s.store.Update(func(tx store.Tx) error {
		current, err := passwords.ReadContainer(tx, s.engine, key)
		if err != nil {
			return err
		}

		records := backup.Records
		result.Restored = len(records)
		result.Replaced = 0
		if mode == RestoreMerge {
			records = merge(current.Records, backup.Records, &result.Replaced)
		} else {
			result.Replaced = len(current.Records)
		}
		result.Total = len(records)

		return passwords.WriteContainer(tx, s.engine, key, records)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("mode", string(mode)).
		Int("restored", result.Restored).
		Int("total", result.Total).
		Msg("backup restored")
	return result, nil
}

func parseBackup(data []byte) (*backupDocument, error) {
	var doc backupDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: backup: %v", domain.ErrFormat, err)
	}
	if doc.Format != FormatBackup {
		return nil, fmt.Errorf("%w: not a ciphora backup", domain.ErrFormat)
	}
	if doc.Version != BackupVersion {
		return nil, fmt.Errorf("%w: unsupported backup version %d", domain.ErrFormat, doc.Version)
	}
	if len(doc.Payload) == 0 {
		return nil, fmt.Errorf("%w: backup has no payload", domain.ErrFormat)
	}
	return &doc, nil
}

// merge keeps vault order, replaces records whose id appears in the backup
// and appends the rest of the backup.
func merge(current, backup []*domain.Record, replaced *int) []*domain.Record {
	byID := make(map[string]*domain.Record, len(backup))
	for _, r := range backup {
		byID[r.ID] = r
	}

	out := make([]*domain.Record, 0, len(current)+len(backup))
	for _, r := range current {
		if b, ok := byID[r.ID]; ok {
			out = append(out, b)
			delete(byID, r.ID)
			*replaced++
			continue
		}
		out = append(out, r)
	}
	for _, r := range backup {
		if _, ok := byID[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}
