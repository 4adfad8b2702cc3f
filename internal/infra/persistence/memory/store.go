// Package memory provides a process-local table backend. Tables are kept in
// their encoded JSON form so values read back have the same shape as those
// coming from the durable backends.
package memory

import (
	"bizdesk/pkg/domain"
	"context"
	"sort"
	"sync"
)

var _ domain.TableBackend = (*Backend)(nil)

// Backend stores encoded tables in memory.
type Backend struct {
	mu     sync.RWMutex
	tables map[domain.EntityType][]byte
}

// NewBackend returns an empty in-memory backend.
func NewBackend() *Backend {
	return &Backend{tables: make(map[domain.EntityType][]byte)}
}

// LoadTable decodes the stored table. Unknown tables are empty.
func (b *Backend) LoadTable(_ context.Context, entity domain.EntityType) ([]domain.Record, error) {
	b.mu.RLock()
	data, ok := b.tables[entity]
	b.mu.RUnlock()
	if !ok {
		return []domain.Record{}, nil
	}
	return domain.DecodeTable(data)
}

// SaveTable encodes and stores the full table.
func (b *Backend) SaveTable(_ context.Context, entity domain.EntityType, rows []domain.Record) error {
	data, err := domain.EncodeTable(rows)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.tables[entity] = data
	b.mu.Unlock()
	return nil
}

// DropTable removes a table.
func (b *Backend) DropTable(_ context.Context, entity domain.EntityType) error {
	b.mu.Lock()
	delete(b.tables, entity)
	b.mu.Unlock()
	return nil
}

// Tables lists stored table names in sorted order.
func (b *Backend) Tables(_ context.Context) ([]domain.EntityType, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.EntityType, 0, len(b.tables))
	for entity := range b.tables {
		out = append(out, entity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Close is a no-op.
func (b *Backend) Close() error { return nil }
