// Package clipboard copies secrets to the system clipboard and clears them
// again after a timeout.
package clipboard

import (
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// Backend is the clipboard being written.
type Backend interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type system struct{}

func (system) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (system) WriteAll(text string) error { return clipboard.WriteAll(text) }

// Clipboard copies with an automatic clear.
type Clipboard struct {
	backend Backend
}

// New returns a Clipboard on the system clipboard.
func New() *Clipboard {
	return &Clipboard{backend: system{}}
}

// NewWithBackend returns a Clipboard on b.
func NewWithBackend(b Backend) *Clipboard {
	return &Clipboard{backend: b}
}

// Available reports whether the clipboard can be used.
func (c *Clipboard) Available() bool {
	if c.backend == nil {
		return false
	}
	if _, ok := c.backend.(system); ok && clipboard.Unsupported {
		return false
	}
	_, err := c.backend.ReadAll()
	return err == nil
}

// CopyWithTimeout copies text and clears it after timeout unless the
// clipboard changed in the meantime. The returned channel closes once the
// clear has run; a process that exits earlier leaves the text in place.
// A zero timeout never clears.
func (c *Clipboard) CopyWithTimeout(text string, timeout time.Duration) (<-chan struct{}, error) {
	if err := c.backend.WriteAll(text); err != nil {
		return nil, fmt.Errorf("failed to copy to clipboard: %w", err)
	}

	done := make(chan struct{})
	if timeout <= 0 {
		close(done)
		return done, nil
	}

	go func() {
		defer close(done)
		time.Sleep(timeout)

		current, err := c.backend.ReadAll()
		if err == nil && current == text {
			_ = c.backend.WriteAll("")
		}
	}()

	return done, nil
}

// Clear clears the clipboard
func (c *Clipboard) Clear() error {
	return c.backend.WriteAll("")
}
