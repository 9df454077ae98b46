package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-cli/ciphora/internal/domain"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vault.db"), Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *BoltStore) {
	t.Helper()
	require.NoError(t, s.Update(func(tx Tx) error {
		if err := tx.PutCredential(&domain.Credential{
			Version:  domain.CredentialVersion,
			Verifier: []byte("verifier"),
			MFA:      domain.MFAState{Status: domain.MFANone},
		}); err != nil {
			return err
		}
		return tx.PutContainer([]byte("sealed"))
	}))
}

func TestOpenCreatesFileWithSecurePermissions(t *testing.T) {
	s := openTestStore(t)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	meta, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, meta.SchemaVersion)
	assert.False(t, meta.CreatedAt.IsZero())
	assert.False(t, meta.Initialized)
}

func TestUninitializedStore(t *testing.T) {
	s := openTestStore(t)

	assert.False(t, s.IsInitialized())

	err := s.View(func(tx Tx) error {
		_, err := tx.Credential()
		return err
	})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, err, domain.ErrState)

	err = s.View(func(tx Tx) error {
		_, err := tx.Container()
		return err
	})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestCredentialAndContainerRoundTrip(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	assert.True(t, s.IsInitialized())

	require.NoError(t, s.View(func(tx Tx) error {
		cred, err := tx.Credential()
		require.NoError(t, err)
		assert.Equal(t, []byte("verifier"), cred.Verifier)
		assert.Equal(t, domain.MFANone, cred.MFA.Status)

		container, err := tx.Container()
		require.NoError(t, err)
		assert.Equal(t, []byte("sealed"), container)
		return nil
	}))
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	boom := errors.New("boom")
	err := s.Update(func(tx Tx) error {
		if err := tx.PutContainer([]byte("half-written")); err != nil {
			return err
		}
		if err := tx.PutCredential(&domain.Credential{Verifier: []byte("new")}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, s.View(func(tx Tx) error {
		container, err := tx.Container()
		require.NoError(t, err)
		assert.Equal(t, []byte("sealed"), container)

		cred, err := tx.Credential()
		require.NoError(t, err)
		assert.Equal(t, []byte("verifier"), cred.Verifier)
		return nil
	}))
}

func TestPutContainerRejectsEmpty(t *testing.T) {
	s := openTestStore(t)
	err := s.Update(func(tx Tx) error { return tx.PutContainer(nil) })
	assert.Error(t, err)
}

func TestWipe(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	require.NoError(t, s.LogOperation(&domain.Operation{Type: "init", Success: true}))

	require.NoError(t, s.Wipe())

	assert.False(t, s.IsInitialized())
	ops, err := s.AuditLog()
	require.NoError(t, err)
	assert.Empty(t, ops)

	// The store stays usable after a wipe.
	seed(t, s)
	assert.True(t, s.IsInitialized())
}

func TestAuditLogOrder(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 12; i++ {
		require.NoError(t, s.LogOperation(&domain.Operation{Type: fmt.Sprintf("op-%d", i), Success: i%2 == 0}))
	}

	ops, err := s.AuditLog()
	require.NoError(t, err)
	require.Len(t, ops, 12)
	for i, op := range ops {
		assert.Equal(t, fmt.Sprintf("op-%d", i), op.Type)
		assert.False(t, op.Timestamp.IsZero())
	}

	info, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, 12, info.AuditEntries)
}

func TestLogOperationNil(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.LogOperation(nil))
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	require.NoError(t, s.Update(func(tx Tx) error { return tx.PutContainer([]byte{0}) }))

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			err := s.Update(func(tx Tx) error {
				current, err := tx.Container()
				if err != nil {
					return err
				}
				return tx.PutContainer([]byte{current[0] + 1})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, s.View(func(tx Tx) error {
		container, err := tx.Container()
		require.NoError(t, err)
		assert.Equal(t, byte(writers), container[0])
		return nil
	}))
}

func TestClosedStore(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.View(func(Tx) error { return nil }), ErrClosed)
	assert.ErrorIs(t, s.Update(func(Tx) error { return nil }), ErrClosed)
	assert.False(t, s.IsInitialized())
	_, err := s.AuditLog()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSecondOpenTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	first, err := Open(path, Options{Timeout: time.Second})
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(path, Options{Timeout: 50 * time.Millisecond})
	assert.ErrorIs(t, err, ErrVaultLocked)
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "export.json")

	require.NoError(t, AtomicWriteFile(target, []byte("first"), 0o600))
	require.NoError(t, AtomicWriteFile(target, []byte("second"), 0o600))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")

	assert.Error(t, AtomicWriteFile("", []byte("x"), 0o600))
}

func TestEnsureFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chmod(path, 0o644))

	require.NoError(t, EnsureFilePermissions(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
