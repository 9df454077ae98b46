package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-cli/ciphora/internal/domain"
	"github.com/vault-cli/ciphora/internal/vault"
)

const backupPassword = "backup passphrase"

func TestBackupRestoreReplace(t *testing.T) {
	src := newHarness(t)
	a := src.add(t, &domain.Record{Website: "A", Password: "1"})
	src.add(t, &domain.Record{Type: domain.TypeJSON, Website: "B", JSONData: `{"k":"v"}`})

	data, err := src.svc.CreateBackup(backupPassword, testKey)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\"1\"")

	var doc backupDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, FormatBackup, doc.Format)
	assert.Equal(t, BackupVersion, doc.Version)
	assert.Equal(t, 2, doc.Count)
	assert.Equal(t, fixedNow, doc.CreatedAt)

	// A different vault key and device restore it with the password alone.
	dst := newHarness(t)
	dst.add(t, &domain.Record{Website: "gone", Password: "x"})

	result, err := dst.svc.RestoreBackup(data, backupPassword, testKey, RestoreReplace)
	require.NoError(t, err)
	assert.Equal(t, RestoreReplace, result.Mode)
	assert.Equal(t, 2, result.Restored)
	assert.Equal(t, 1, result.Replaced)
	assert.Equal(t, 2, result.Total)

	all := dst.all(t)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID, "ids survive a restore")
	assert.Equal(t, `{"k":"v"}`, all[1].JSONData)
}

func TestRestoreMerge(t *testing.T) {
	h := newHarness(t)
	a := h.add(t, &domain.Record{Website: "A", Password: "from-backup"})
	data, err := h.svc.CreateBackup(backupPassword, testKey)
	require.NoError(t, err)

	_, err = h.records.UpdatePassword(a.ID, &domain.Record{Website: "A", Password: "edited"}, testKey)
	require.NoError(t, err)
	b := h.add(t, &domain.Record{Website: "B", Password: "2"})

	result, err := h.svc.RestoreBackup(data, backupPassword, testKey, RestoreMerge)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Replaced)
	assert.Equal(t, 2, result.Total)

	gotA, err := h.records.GetPassword(a.ID, testKey)
	require.NoError(t, err)
	assert.Equal(t, "from-backup", gotA.Password, "backup wins")

	_, err = h.records.GetPassword(b.ID, testKey)
	assert.NoError(t, err, "records missing from the backup are kept")
}

func TestRestoreFailuresLeaveVaultUntouched(t *testing.T) {
	h := newHarness(t)
	h.add(t, &domain.Record{Website: "A", Password: "1"})
	data, err := h.svc.CreateBackup(backupPassword, testKey)
	require.NoError(t, err)
	h.add(t, &domain.Record{Website: "B", Password: "2"})


	_, err = h.svc.RestoreBackup([]byte("not json"), backupPassword, testKey, RestoreReplace)
	assert.ErrorIs(t, err, domain.ErrFormat)

	_, err = h.svc.RestoreBackup([]byte(`{"format":"json","version":1,"payload":"AA=="}`), backupPassword, testKey, RestoreReplace)
	assert.ErrorIs(t, err, domain.ErrFormat)

	_, err = h.svc.RestoreBackup([]byte(`{"format":"ciphora-backup","version":2,"payload":"AA=="}`), backupPassword, testKey, RestoreReplace)
	assert.ErrorIs(t, err, domain.ErrFormat)

	var doc backupDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	doc.Payload = doc.Payload[:len(doc.Payload)-4]
	truncated, err := json.Marshal(doc)
	require.NoError(t, err)
	_, err = h.svc.RestoreBackup(truncated, backupPassword, testKey, RestoreReplace)
	assert.ErrorIs(t, err, domain.ErrFormat)

	_, err = h.svc.RestoreBackup(data, backupPassword, testKey, RestoreMode("append"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Len(t, h.all(t), 2)
}

func TestRestoreDistinguishesBackupPasswordFromVaultKey(t *testing.T) {
	wrongKey := bytes.Repeat([]byte{0x99}, len(testKey))

	tests := []struct {
		name           string
		password       string
		key            []byte
		backupPassword bool
	}{
		{"wrong backup password", "wrong password", testKey, true},
		{"wrong vault key", backupPassword, wrongKey, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.add(t, &domain.Record{Website: "A", Password: "1"})
			data, err := h.svc.CreateBackup(backupPassword, testKey)
			require.NoError(t, err)

			_, err = h.svc.RestoreBackup(data, tt.password, tt.key, RestoreReplace)
			assert.ErrorIs(t, err, domain.ErrIntegrity)
			assert.Equal(t, tt.backupPassword, errors.Is(err, ErrBackupPassword))

			assert.Len(t, h.all(t), 1)
		})
	}
}

func TestRestoreRejectsRepeatedIDs(t *testing.T) {
	for _, mode := range []RestoreMode{RestoreReplace, RestoreMerge} {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t)
			a := h.add(t, &domain.Record{Website: "A", Password: "1"})

			dup := a.Clone()
			dup.Password = "2"
			plaintext, err := domain.NewContainer([]*domain.Record{a, dup}).Marshal()
			require.NoError(t, err)
			envelope, err := h.engine.SealWithPassphrase(plaintext, backupPassword)
			require.NoError(t, err)
			data, err := json.Marshal(backupDocument{
				Format:    FormatBackup,
				Version:   BackupVersion,
				CreatedAt: fixedNow,
				Count:     2,
				Payload:   vault.EnvelopeToBytes(envelope),
			})
			require.NoError(t, err)

			_, err = h.svc.RestoreBackup(data, backupPassword, testKey, mode)
			assert.ErrorIs(t, err, domain.ErrFormat)

			all := h.all(t)
			require.Len(t, all, 1)
			assert.Equal(t, "1", all[0].Password)
		})
	}
}

func TestCreateBackupRequiresPassword(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CreateBackup("  ", testKey)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseRestoreMode(t *testing.T) {
	m, err := ParseRestoreMode("")
	require.NoError(t, err)
	assert.Equal(t, RestoreReplace, m)

	m, err = ParseRestoreMode("MERGE")
	require.NoError(t, err)
	assert.Equal(t, RestoreMerge, m)

	_, err = ParseRestoreMode("overwrite")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
