// Package sqlite persists whole tables to a single SQLite state table, one
// JSON array per entity bucket.
package sqlite

import (
	"bizdesk/pkg/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.TableBackend = (*Backend)(nil)

const defaultPath = "bizdesk.db"

// Backend stores tables in SQLite.
type Backend struct {
	db   *sql.DB
	path string
}

// NewBackend opens (or creates) the database at path and ensures the state
// table exists.
func NewBackend(path string) (*Backend, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single connection: whole-table upserts must not interleave
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &Backend{db: db, path: path}, nil
}

// LoadTable reads the table payload for the entity bucket.
func (b *Backend) LoadTable(ctx context.Context, entity domain.EntityType) ([]domain.Record, error) {
	var payload []byte
	err := b.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE bucket = ?`, string(entity)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", entity, err)
	}
	rows, err := domain.DecodeTable(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", entity, err)
	}
	return rows, nil
}

// SaveTable upserts the full table payload.
func (b *Backend) SaveTable(ctx context.Context, entity domain.EntityType, rows []domain.Record) error {
	data, err := domain.EncodeTable(rows)
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, string(entity), data); err != nil {
		return fmt.Errorf("upsert %s: %w", entity, err)
	}
	return nil
}

// DropTable deletes the entity bucket.
func (b *Backend) DropTable(ctx context.Context, entity domain.EntityType) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM state WHERE bucket = ?`, string(entity)); err != nil {
		return fmt.Errorf("delete %s: %w", entity, err)
	}
	return nil
}

// Tables lists stored buckets.
func (b *Backend) Tables(ctx context.Context) ([]domain.EntityType, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT bucket FROM state`)
	if err != nil {
		return nil, fmt.Errorf("select buckets: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.EntityType
	for rows.Next() {
		var bucket string
		if err := rows.Scan(&bucket); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, domain.EntityType(bucket))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Close releases the database handle.
func (b *Backend) Close() error { return b.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (b *Backend) DB() *sql.DB { return b.db }

// Path returns the configured database path.
func (b *Backend) Path() string { return b.path }
