package session

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeeperSetGetClear(t *testing.T) {
	k := NewKeeper(0)

	_, ok := k.Key()
	assert.False(t, ok)
	assert.False(t, k.Unlocked())

	key := []byte("0123456789abcdef0123456789abcdef")
	k.SetKey(key)

	got, ok := k.Key()
	require.True(t, ok)
	assert.Equal(t, key, got)

	// Returned keys are copies.
	got[0] = 'X'
	again, _ := k.Key()
	assert.Equal(t, byte('0'), again[0])

	// So is the stored one.
	key[1] = 'Y'
	again, _ = k.Key()
	assert.Equal(t, byte('1'), again[1])

	k.Clear()
	assert.False(t, k.Unlocked())
}

func TestKeeperExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	k := NewKeeper(time.Minute).WithClock(func() time.Time { return now })

	k.SetKey([]byte("key"))
	assert.True(t, k.Unlocked())

	now = now.Add(59 * time.Second)
	assert.True(t, k.Unlocked())

	now = now.Add(2 * time.Second)
	assert.False(t, k.Unlocked())

	// Once expired it stays gone.
	now = time.Unix(1000, 0)
	assert.False(t, k.Unlocked())
}

func TestKeeperDeviceID(t *testing.T) {
	k := NewKeeper(0)
	assert.Empty(t, k.DeviceID())
	k.SetDeviceID("dev-1")
	assert.Equal(t, "dev-1", k.DeviceID())

	k.SetKey([]byte("k"))
	k.Clear()
	assert.Equal(t, "dev-1", k.DeviceID(), "clearing the key keeps the device id")
}

func TestKeeperConcurrentAccess(t *testing.T) {
	k := NewKeeper(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			k.SetKey([]byte{byte(i), 1, 2, 3})
		}(i)
		go func() {
			defer wg.Done()
			if key, ok := k.Key(); ok {
				assert.Len(t, key, 4)
			}
		}()
	}
	wg.Wait()
}

func TestLoadOrCreateDeviceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ciphora", "device-id")

	first, err := LoadOrCreateDeviceID(path)
	require.NoError(t, err)
	_, err = uuid.Parse(first)
	require.NoError(t, err)

	second, err := LoadOrCreateDeviceID(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadOrCreateDeviceIDCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device-id")
	require.NoError(t, os.WriteFile(path, []byte("not-a-uuid"), 0o600))

	_, err := LoadOrCreateDeviceID(path)
	assert.ErrorIs(t, err, ErrInvalidDeviceID)
}
