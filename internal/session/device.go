package session

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/vault-cli/ciphora/internal/store"
)

// ErrInvalidDeviceID is returned when the device-id file holds something
// other than a UUID.
var ErrInvalidDeviceID = errors.New("device id file is corrupted")

// LoadOrCreateDeviceID reads the installation's device identifier from path,
// generating and persisting a new UUID the first time.
func LoadOrCreateDeviceID(path string) (string, error) {
	if b, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(b))
		if _, err := uuid.Parse(id); err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidDeviceID, path)
		}
		return id, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id := uuid.NewString()
	if err := store.AtomicWriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	return id, nil
}
