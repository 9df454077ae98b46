package clipboard

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBackend struct {
	mu   sync.Mutex
	text string
	err  error
}

func (m *memoryBackend) ReadAll() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, m.err
}

func (m *memoryBackend) WriteAll(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.text = text
	return nil
}

func TestCopyWithTimeoutClears(t *testing.T) {
	b := &memoryBackend{}
	c := NewWithBackend(b)
	require.True(t, c.Available())

	done, err := c.CopyWithTimeout("s3cret", 10*time.Millisecond)
	require.NoError(t, err)

	got, _ := b.ReadAll()
	assert.Equal(t, "s3cret", got)

	<-done
	got, _ = b.ReadAll()
	assert.Empty(t, got)
}

func TestCopyWithTimeoutKeepsNewerContent(t *testing.T) {
	b := &memoryBackend{}
	c := NewWithBackend(b)

	done, err := c.CopyWithTimeout("s3cret", 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, b.WriteAll("copied by the user"))

	<-done
	got, _ := b.ReadAll()
	assert.Equal(t, "copied by the user", got)
}

func TestCopyWithoutTimeout(t *testing.T) {
	b := &memoryBackend{}
	done, err := NewWithBackend(b).CopyWithTimeout("kept", 0)
	require.NoError(t, err)
	<-done

	got, _ := b.ReadAll()
	assert.Equal(t, "kept", got)
}

func TestUnavailableBackend(t *testing.T) {
	b := &memoryBackend{err: errors.New("no display")}
	c := NewWithBackend(b)
	assert.False(t, c.Available())

	_, err := c.CopyWithTimeout("x", time.Second)
	assert.Error(t, err)
}
