package session

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps the marker in an embedded on-disk database so it
// survives process restarts.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) the database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemoryBadgerStore opens a non-persistent database.
func OpenInMemoryBadgerStore() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Get reads key.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("badger get failed: %w", err)
	}
	return value, true, nil
}

// Set writes key.
func (s *BadgerStore) Set(_ context.Context, key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("badger set failed: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *BadgerStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete failed: %w", err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
