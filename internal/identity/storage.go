package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Storage persists small identity values on the device.
type Storage interface {
	// LoadOrStore returns the value stored under key. When the key is absent it calls
	// create, stores the result and returns it. create runs at most once per stored key.
	LoadOrStore(ctx context.Context, key string, create func() (string, error)) (string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// MemoryStorage keeps values for the life of the process.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// LoadOrStore implements Storage.
func (m *MemoryStorage) LoadOrStore(_ context.Context, key string, create func() (string, error)) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.values[key]; ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return "", err
	}
	m.values[key] = v
	return v, nil
}

// Delete implements Storage.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

const keyPrefix = "identity:"

// BadgerStorage keeps values in a badger database so they survive restarts.
type BadgerStorage struct {
	db *badger.DB
	mu sync.Mutex
}

// OpenBadgerStorage opens (or creates) a badger database in dir.
// An empty dir opens an in-memory database.
func OpenBadgerStorage(dir string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.SyncWrites = true
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}
	return &BadgerStorage{db: db}, nil
}

// Close closes the database.
func (b *BadgerStorage) Close() error {
	return b.db.Close()
}

// LoadOrStore implements Storage. The read and the write share one transaction.
func (b *BadgerStorage) LoadOrStore(ctx context.Context, key string, create func() (string, error)) (string, error) {
	// Serialize within the process so create is never called twice for one key.
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	var value string
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err == nil {
			return item.Value(func(val []byte) error {
				value = string(val)
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		created, err := create()
		if err != nil {
			return err
		}
		value = created
		return txn.Set([]byte(keyPrefix+key), []byte(created))
	})
	if err != nil {
		return "", fmt.Errorf("load identity %q: %w", key, err)
	}
	return value, nil
}

// Delete implements Storage.
func (b *BadgerStorage) Delete(_ context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
}
