// Package badger persists whole tables in an embedded Badger key-value store.
// Each table lives under the key "table/<entity>" as a JSON array.
package badger

import (
	"bizdesk/pkg/domain"
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var _ domain.TableBackend = (*Backend)(nil)

var tablePrefix = []byte("table/")

// Backend stores tables in Badger.
type Backend struct {
	db *badger.DB
}

// NewBackend opens a Badger database in dir. An empty dir opens an in-memory
// instance.
func NewBackend(dir string) (*Backend, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Backend{db: db}, nil
}

func tableKey(entity domain.EntityType) []byte {
	return append(append([]byte{}, tablePrefix...), entity...)
}

// LoadTable reads the table value. Missing keys decode to an empty table.
func (b *Backend) LoadTable(_ context.Context, entity domain.EntityType) ([]domain.Record, error) {
	var payload []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tableKey(entity))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			payload = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entity, err)
	}
	rows, err := domain.DecodeTable(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", entity, err)
	}
	return rows, nil
}

// SaveTable writes the full table value.
func (b *Backend) SaveTable(_ context.Context, entity domain.EntityType, rows []domain.Record) error {
	data, err := domain.EncodeTable(rows)
	if err != nil {
		return err
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tableKey(entity), data)
	}); err != nil {
		return fmt.Errorf("write %s: %w", entity, err)
	}
	return nil
}

// DropTable deletes the table key.
func (b *Backend) DropTable(_ context.Context, entity domain.EntityType) error {
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(tableKey(entity))
	}); err != nil {
		return fmt.Errorf("delete %s: %w", entity, err)
	}
	return nil
}

// Tables lists stored table names in key order.
func (b *Backend) Tables(_ context.Context) ([]domain.EntityType, error) {
	var out []domain.EntityType
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = tablePrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			out = append(out, domain.EntityType(bytes.TrimPrefix(key, tablePrefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return out, nil
}

// Close flushes and closes the database.
func (b *Backend) Close() error { return b.db.Close() }
