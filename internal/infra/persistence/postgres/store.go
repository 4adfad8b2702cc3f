// Package postgres persists whole tables to a Postgres state table with one
// JSONB payload per entity bucket.
package postgres

import (
	"bizdesk/pkg/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.TableBackend = (*Backend)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/bizdesk?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Backend stores tables in Postgres.
type Backend struct {
	db *sql.DB
}

// NewBackend opens a Postgres connection using dsn (falls back to defaultDSN)
// and ensures the state table exists.
func NewBackend(ctx context.Context, dsn string) (*Backend, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Backend{db: db}, nil
}

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

// LoadTable reads the JSONB payload for the entity bucket.
func (b *Backend) LoadTable(ctx context.Context, entity domain.EntityType) ([]domain.Record, error) {
	var payload []byte
	err := b.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE bucket = $1`, string(entity)).Scan(&payload)
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

// SaveTable upserts the table inside a transaction.
func (b *Backend) SaveTable(ctx context.Context, entity domain.EntityType, rows []domain.Record) error {
	data, err := domain.EncodeTable(rows)
	if err != nil {
		return err
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, string(entity), data); err != nil {
		return fmt.Errorf("upsert %s: %w", entity, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// DropTable deletes the entity bucket.
func (b *Backend) DropTable(ctx context.Context, entity domain.EntityType) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM state WHERE bucket = $1`, string(entity)); err != nil {
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
			return nil, fmt.Errorf("scan buckets: %w", err)
		}
		out = append(out, domain.EntityType(bucket))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Close releases the connection pool.
func (b *Backend) Close() error { return b.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (b *Backend) DB() *sql.DB { return b.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
