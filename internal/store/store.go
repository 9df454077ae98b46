// Package store persists the encrypted vault container, the authentication
// credential and the audit log. It never interprets container plaintext.
package store

import (
	"errors"
	"fmt"

	"github.com/vault-cli/ciphora/internal/domain"
)

var (
	// ErrNotInitialized is returned when the credential or container is absent
	ErrNotInitialized = fmt.Errorf("vault is not initialized: %w", domain.ErrState)
	// ErrVaultLocked is returned when the vault file is held by another process
	ErrVaultLocked = errors.New("vault is locked by another process")
	// ErrVaultCorrupted is returned when stored data cannot be decoded
	ErrVaultCorrupted = fmt.Errorf("vault data is corrupted: %w", domain.ErrFormat)
	// ErrClosed is returned for operations on a closed store
	ErrClosed = errors.New("vault store is closed")
)

// Tx is the view of the store inside a single transaction. Changes made
// through an update Tx are committed together or not at all.
type Tx interface {
	// Credential returns the persisted authentication material.
	Credential() (*domain.Credential, error)
	PutCredential(cred *domain.Credential) error

	// Container returns the opaque encrypted vault container.
	Container() ([]byte, error)
	PutContainer(data []byte) error
}

// Store is the storage contract used by the services. Update transactions
// are serialized; View transactions see a consistent snapshot and may run
// concurrently with each other.
type Store interface {
	View(fn func(tx Tx) error) error
	Update(fn func(tx Tx) error) error

	// IsInitialized reports whether a credential has been stored.
	IsInitialized() bool
	// Wipe removes the credential, the container and the audit log.
	Wipe() error

	LogOperation(op *domain.Operation) error
	AuditLog() ([]*domain.Operation, error)

	Close() error
}
