package passwords

import (
	"fmt"

	"github.com/vault-cli/ciphora/internal/domain"
	"github.com/vault-cli/ciphora/internal/store"
	"github.com/vault-cli/ciphora/internal/vault"
)

// ReadContainer decrypts the vault container inside tx.
func ReadContainer(tx store.Tx, engine *vault.CryptoEngine, key []byte) (*domain.Container, error) {
	sealed, err := tx.Container()
	if err != nil {
		return nil, err
	}

	plaintext, err := engine.Decrypt(sealed, key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt vault: %w", err)
	}
	defer vault.Zeroize(plaintext)

	return domain.UnmarshalContainer(plaintext)
}

// WriteContainer encrypts records under key and stores them inside tx. The
// write becomes visible only when the enclosing transaction commits.
func WriteContainer(tx store.Tx, engine *vault.CryptoEngine, key []byte, records []*domain.Record) error {
	plaintext, err := domain.NewContainer(records).Marshal()
	if err != nil {
		return err
	}
	defer vault.Zeroize(plaintext)

	sealed, err := engine.Encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt vault: %w", err)
	}
	return tx.PutContainer(sealed)
}
