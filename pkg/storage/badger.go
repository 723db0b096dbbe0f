package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/dgraph-io/badger/v4"
)

const defaultBadgerDir = "./data"

// OpenBadger opens a Badger database under dataDir, or a purely in-memory
// one when inMemory is set.
func OpenBadger(dataDir string, inMemory bool) (*badger.DB, error) {
	var opts badger.Options
	switch {
	case inMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	default:
		if dataDir == "" {
			dataDir = defaultBadgerDir
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		opts = badger.DefaultOptions(filepath.Join(dataDir, "badger.db"))
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open Badger database: %w", err)
	}

	return db, nil
}

// badgerStorage stores JSON encoded values under prefix+key so several
// collections can share one database.
type badgerStorage[T any] struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStorage[T any](db *badger.DB, prefix string) Storage[T] {
	return &badgerStorage[T]{
		db:     db,
		prefix: prefix + ":",
	}
}

func (s *badgerStorage[T]) key(k string) []byte {
	return []byte(s.prefix + k)
}

func (s *badgerStorage[T]) Create(_ context.Context, key string, value T) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(s.key(key))
		if err == nil {
			return pkgerrors.ErrEntityExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check key existence: %w", err)
		}

		return s.write(txn, key, value)
	})
}

func (s *badgerStorage[T]) Get(_ context.Context, key string) (T, error) {
	var result T
	if key == "" {
		return result, pkgerrors.ErrEmptyKey
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return pkgerrors.ErrNotFound
			}

			return fmt.Errorf("failed to get key: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &result)
		})
	})

	return result, err
}

func (s *badgerStorage[T]) Update(_ context.Context, key string, value T) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(s.key(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return pkgerrors.ErrNotFound
			}

			return fmt.Errorf("failed to check key existence: %w", err)
		}

		return s.write(txn, key, value)
	})
}

func (s *badgerStorage[T]) List(_ context.Context, offset, limit uint64) ([]T, uint64, error) {
	var (
		result []T
		total  uint64
	)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(s.prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			idx := total
			total++
			if idx < offset || idx >= offset+limit {
				continue
			}

			var value T
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &value)
			}); err != nil {
				return fmt.Errorf("failed to decode value: %w", err)
			}
			result = append(result, value)
		}

		return nil
	})

	return result, total, err
}

func (s *badgerStorage[T]) Delete(_ context.Context, key string) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(key))
	})
}

func (s *badgerStorage[T]) write(txn *badger.Txn, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return txn.Set(s.key(key), data)
}
