package passwords

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-cli/ciphora/internal/domain"
	"github.com/vault-cli/ciphora/internal/logger"
	"github.com/vault-cli/ciphora/internal/store"
	"github.com/vault-cli/ciphora/internal/vault"
)

var testKey = bytes.Repeat([]byte{0x42}, vault.KeySize)

func newTestService(t *testing.T) *Service {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "vault.db"), store.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	engine := vault.NewCryptoEngine(domain.KDFParams{Memory: 1024, Iterations: 1, Parallelism: 1})
	require.NoError(t, st.Update(func(tx store.Tx) error {
		return WriteContainer(tx, engine, testKey, nil)
	}))

	return NewService(st, engine, logger.Nop())
}

func add(t *testing.T, s *Service, r *domain.Record) *domain.Record {
	t.Helper()
	stored, err := s.AddPassword(r, testKey)
	require.NoError(t, err)
	return stored
}

func TestAddAndGet(t *testing.T) {
	s := newTestService(t)

	stored := add(t, s, &domain.Record{
		Website:  "GitHub",
		Username: "octocat",
		Password: "s3cret",
		Secret:   "ignored for password records",
	})

	id, err := uuid.Parse(stored.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, domain.TypePassword, stored.Type)
	assert.Equal(t, stored.CreatedAt, stored.UpdatedAt)
	assert.Empty(t, stored.Secret, "non-authoritative payload is cleared")

	got, err := s.GetPassword(stored.ID, testKey)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got.Password)
	assert.True(t, got.SameContent(stored))

	// Returned records do not alias the vault.
	got.Password = "changed"
	again, err := s.GetPassword(stored.ID, testKey)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", again.Password)

	second := add(t, s, &domain.Record{Website: "GitLab", Password: "x"})
	assert.NotEqual(t, stored.ID, second.ID)

	all, err := s.GetPasswords(testKey)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, stored.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
}

func TestAddValidation(t *testing.T) {
	s := newTestService(t)

	tests := []struct {
		name   string
		record *domain.Record
	}{
		{"unknown type", &domain.Record{Type: "note"}},
		{"mfa without secret", &domain.Record{Type: domain.TypeMFA}},
		{"mfa not base32", &domain.Record{Type: domain.TypeMFA, Secret: "not!base32"}},
		{"bad base64", &domain.Record{Type: domain.TypeBase64, Base64Data: "%%%"}},
		{"bad json", &domain.Record{Type: domain.TypeJSON, JSONData: "{oops"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddPassword(tt.record, testKey)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	_, err := s.AddPassword(nil, testKey)
	assert.ErrorIs(t, err, domain.ErrValidation)

	all, err := s.GetPasswords(testKey)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestJSONPayloadKeptVerbatim(t *testing.T) {
	s := newTestService(t)
	raw := `{ "b": 1,  "a": [true] }`
	stored := add(t, s, &domain.Record{Type: domain.TypeJSON, JSONData: raw})

	got, err := s.GetPassword(stored.ID, testKey)
	require.NoError(t, err)
	assert.Equal(t, raw, got.JSONData)
}

func TestUpdatePassword(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestService(t)
	s.now = func() time.Time { return now }

	stored := add(t, s, &domain.Record{Website: "example.com", Username: "alice", Password: "one"})

	now = now.Add(time.Hour)
	updated, err := s.UpdatePassword(stored.ID, &domain.Record{
		ID:        "attempted-change",
		Website:   "example.com",
		Username:  "alice",
		Password:  "two",
		CreatedAt: now.Add(24 * time.Hour),
	}, testKey)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, updated.ID)
	assert.Equal(t, stored.CreatedAt, updated.CreatedAt)
	assert.Equal(t, now, updated.UpdatedAt)

	got, err := s.GetPassword(stored.ID, testKey)
	require.NoError(t, err)
	assert.Equal(t, "two", got.Password)

	_, err = s.UpdatePassword("missing", &domain.Record{Password: "x"}, testKey)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.UpdatePassword(stored.ID, &domain.Record{Type: domain.TypeJSON, JSONData: "nope"}, testKey)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeleteAndClear(t *testing.T) {
	s := newTestService(t)
	a := add(t, s, &domain.Record{Website: "a", Password: "1"})
	add(t, s, &domain.Record{Website: "b", Password: "2"})
	add(t, s, &domain.Record{Website: "c", Password: "3"})

	require.NoError(t, s.DeletePassword(a.ID, testKey))
	_, err := s.GetPassword(a.ID, testKey)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.DeletePassword(a.ID, testKey), domain.ErrNotFound)

	removed, err := s.ClearAllPasswords(testKey)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	all, err := s.GetPasswords(testKey)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWrongKeyIsNotNotFound(t *testing.T) {
	s := newTestService(t)
	stored := add(t, s, &domain.Record{Website: "a", Password: "1"})

	wrong := bytes.Repeat([]byte{0x24}, vault.KeySize)
	_, err := s.GetPassword(stored.ID, wrong)
	assert.ErrorIs(t, err, domain.ErrIntegrity)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	_, err = s.AddPassword(&domain.Record{Website: "b", Password: "2"}, wrong)
	assert.ErrorIs(t, err, domain.ErrIntegrity)

	all, err := s.GetPasswords(testKey)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSearchPasswords(t *testing.T) {
	s := newTestService(t)
	add(t, s, &domain.Record{Website: "GitHub", Username: "octocat", Password: "findme"})
	add(t, s, &domain.Record{Website: "Bank", Username: "alice", Notes: "Savings at GITHUB credit union"})
	add(t, s, &domain.Record{Type: domain.TypeString, Website: "wifi", Description: "Home router", StringData: "pw"})

	tests := []struct {
		term string
		want int
	}{
		{"github", 2},
		{"  OCTO ", 1},
		{"router", 1},
		{"findme", 0},
		{"", 3},
		{"nothing", 0},
	}
	for _, tt := range tests {
		got, err := s.SearchPasswords(tt.term, testKey)
		require.NoError(t, err)
		assert.Len(t, got, tt.want, "term %q", tt.term)
	}
}

func TestGetStatistics(t *testing.T) {
	s := newTestService(t)

	stats, err := s.GetStatistics(testKey)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Len(t, stats.ByType, len(domain.RecordTypes))

	add(t, s, &domain.Record{Password: "1"})
	add(t, s, &domain.Record{Password: "2"})
	add(t, s, &domain.Record{Type: domain.TypeMFA, Secret: "JBSWY3DPEHPK3PXP"})

	stats, err = s.GetStatistics(testKey)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByType[domain.TypePassword])
	assert.Equal(t, 1, stats.ByType[domain.TypeMFA])
	assert.Equal(t, 0, stats.ByType[domain.TypeJSON])
}

func TestConcurrentAddsAreNotLost(t *testing.T) {
	s := newTestService(t)

	const writers = 16
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.AddPassword(&domain.Record{Website: "site", Password: "pw"}, testKey)
			assert.NoError(t, err)
		}()
	}

	// Readers see either the old or the new container, never a partial one.
	for i := 0; i < writers; i++ {
		_, err := s.GetPasswords(testKey)
		require.NoError(t, err)
	}
	wg.Wait()

	all, err := s.GetPasswords(testKey)
	require.NoError(t, err)
	assert.Len(t, all, writers)
}
