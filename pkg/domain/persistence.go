package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// TableStore is the whole-table record store used by the mutation workflow.
// Every call reads the table, mutates a copy and writes the table back; calls
// never share a transaction. Storage failures are absorbed by the
// implementation so callers only see the not-found outcome.
type TableStore interface {
	List(ctx context.Context, entity EntityType) []Record
	Get(ctx context.Context, entity EntityType, id string) (Record, bool)
	Insert(ctx context.Context, entity EntityType, record Record) Record
	Replace(ctx context.Context, entity EntityType, id string, record Record) (Record, bool)
	Remove(ctx context.Context, entity EntityType, id string) bool
}

// Dataset holds full table contents keyed by entity.
type Dataset map[EntityType][]Record

// Clone deep-copies every table.
func (d Dataset) Clone() Dataset {
	out := make(Dataset, len(d))
	for entity, rows := range d {
		out[entity] = CloneRecords(rows)
	}
	return out
}

// TableBackend persists whole tables. Implementations store each table as a
// single JSON array under the entity name.
type TableBackend interface {
	LoadTable(ctx context.Context, entity EntityType) ([]Record, error)
	SaveTable(ctx context.Context, entity EntityType, rows []Record) error
	DropTable(ctx context.Context, entity EntityType) error
	Tables(ctx context.Context) ([]EntityType, error)
	Close() error
}

// EncodeTable serializes a table for storage.
func EncodeTable(rows []Record) ([]byte, error) {
	if rows == nil {
		rows = []Record{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode table: %w", err)
	}
	return data, nil
}

// DecodeTable parses a stored table. Empty payloads decode to an empty table.
func DecodeTable(data []byte) ([]Record, error) {
	if len(data) == 0 {
		return []Record{}, nil
	}
	var rows []Record
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	if rows == nil {
		rows = []Record{}
	}
	return rows, nil
}
