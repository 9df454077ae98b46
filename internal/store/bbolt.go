package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/vault-cli/ciphora/internal/domain"
)

// Bucket names
var (
	AuthBucket  = []byte("auth")
	VaultBucket = []byte("vault")
	AuditBucket = []byte("audit")
	MetaBucket  = []byte("meta")

	allBuckets = [][]byte{AuthBucket, VaultBucket, AuditBucket, MetaBucket}
)

var (
	credentialKey = []byte("credential")
	containerKey  = []byte("container")
	createdAtKey  = []byte("created_at")
	schemaKey     = []byte("schema_version")
)

// SchemaVersion is the bucket layout version written to the meta bucket.
const SchemaVersion = "1"

// Options configures how the vault database is opened.
type Options struct {
	// Timeout bounds the wait for the file lock held by another process.
	Timeout time.Duration
}

// DefaultOptions returns the options used by the command line.
func DefaultOptions() Options {
	return Options{Timeout: 10 * time.Second}
}

// Info summarizes the store for status output.
type Info struct {
	Path          string    `json:"path"`
	SchemaVersion string    `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	Initialized   bool      `json:"initialized"`
	ContainerSize int       `json:"container_size"`
	AuditEntries  int       `json:"audit_entries"`
}

// BoltStore implements Store using BoltDB
type BoltStore struct {
	mu   sync.RWMutex
	db   *bbolt.DB
	path string
}

// Open opens or creates the vault database at path and ensures every bucket
// exists.
func Open(path string, opts Options) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: opts.Timeout})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, ErrVaultLocked
		}
		return nil, fmt.Errorf("failed to open vault database: %w", err)
	}

	if err := EnsureFilePermissions(path); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to verify vault permissions: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		return createBuckets(tx)
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: path}, nil
}

func createBuckets(tx *bbolt.Tx) error {
	for _, name := range allBuckets {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return fmt.Errorf("failed to create %s bucket: %w", name, err)
		}
	}

	meta := tx.Bucket(MetaBucket)
	if meta.Get(schemaKey) == nil {
		if err := meta.Put(schemaKey, []byte(SchemaVersion)); err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}
		created, err := time.Now().UTC().MarshalText()
		if err != nil {
			return err
		}
		if err := meta.Put(createdAtKey, created); err != nil {
			return fmt.Errorf("failed to store creation time: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (bs *BoltStore) Path() string {
	return bs.path
}

func (bs *BoltStore) database() (*bbolt.DB, error) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	if bs.db == nil {
		return nil, ErrClosed
	}
	return bs.db, nil
}

// View runs fn in a read-only transaction.
func (bs *BoltStore) View(fn func(tx Tx) error) error {
	db, err := bs.database()
	if err != nil {
		return err
	}
	return db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// Update runs fn in a read-write transaction. A non-nil error from fn rolls
// back every change made through the Tx.
func (bs *BoltStore) Update(fn func(tx Tx) error) error {
	db, err := bs.database()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// IsInitialized reports whether a credential exists. It never fails: a closed
// or unreadable store counts as uninitialized.
func (bs *BoltStore) IsInitialized() bool {
	db, err := bs.database()
	if err != nil {
		return false
	}
	initialized := false
	_ = db.View(func(tx *bbolt.Tx) error {
		initialized = tx.Bucket(AuthBucket).Get(credentialKey) != nil
		return nil
	})
	return initialized
}

// Wipe drops and recreates every bucket in a single transaction.
func (bs *BoltStore) Wipe() error {
	db, err := bs.database()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return fmt.Errorf("failed to delete %s bucket: %w", name, err)
			}
		}
		return createBuckets(tx)
	})
}

// Info reports schema details, the container size and the audit log length.
func (bs *BoltStore) Info() (*Info, error) {
	info := &Info{Path: bs.path}
	db, err := bs.database()
	if err != nil {
		return nil, err
	}
	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(MetaBucket)
		info.SchemaVersion = string(meta.Get(schemaKey))
		if raw := meta.Get(createdAtKey); raw != nil {
			if err := info.CreatedAt.UnmarshalText(raw); err != nil {
				return ErrVaultCorrupted
			}
		}
		info.Initialized = tx.Bucket(AuthBucket).Get(credentialKey) != nil
		info.ContainerSize = len(tx.Bucket(VaultBucket).Get(containerKey))
		info.AuditEntries = tx.Bucket(AuditBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Close closes the database and releases the file lock.
func (bs *BoltStore) Close() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.db == nil {
		return nil
	}
	err := bs.db.Close()
	bs.db = nil
	return err
}

type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) Credential() (*domain.Credential, error) {
	raw := t.tx.Bucket(AuthBucket).Get(credentialKey)
	if raw == nil {
		return nil, ErrNotInitialized
	}
	var cred domain.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("%w: credential: %v", ErrVaultCorrupted, err)
	}
	return &cred, nil
}

func (t *boltTx) PutCredential(cred *domain.Credential) error {
	if cred == nil {
		return errors.New("credential cannot be nil")
	}
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	return t.tx.Bucket(AuthBucket).Put(credentialKey, raw)
}

func (t *boltTx) Container() ([]byte, error) {
	raw := t.tx.Bucket(VaultBucket).Get(containerKey)
	if raw == nil {
		return nil, ErrNotInitialized
	}
	// bbolt memory is only valid for the life of the transaction.
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (t *boltTx) PutContainer(data []byte) error {
	if len(data) == 0 {
		return errors.New("container cannot be empty")
	}
	return t.tx.Bucket(VaultBucket).Put(containerKey, data)
}

// LogOperation persists an audit entry in the audit bucket.
func (bs *BoltStore) LogOperation(op *domain.Operation) error {
	if op == nil {
		return fmt.Errorf("operation cannot be nil")
	}
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now().UTC()
	}

	db, err := bs.database()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(AuditBucket)

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate audit sequence: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		payload, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("failed to encode audit entry: %w", err)
		}

		return bucket.Put(key, payload)
	})
}

// AuditLog returns audit operations in chronological order.
func (bs *BoltStore) AuditLog() ([]*domain.Operation, error) {
	db, err := bs.database()
	if err != nil {
		return nil, err
	}

	var ops []*domain.Operation
	err = db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(AuditBucket).ForEach(func(k, v []byte) error {
			var op domain.Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("%w: audit entry: %v", ErrVaultCorrupted, err)
			}
			op.Timestamp = op.Timestamp.UTC()
			ops = append(ops, &op)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return ops, nil
}
