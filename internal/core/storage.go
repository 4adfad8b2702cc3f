package core

import (
	"bizdesk/internal/infra/persistence/badger"
	"bizdesk/internal/infra/persistence/memory"
	"bizdesk/internal/infra/persistence/postgres"
	"bizdesk/internal/infra/persistence/sqlite"
	"bizdesk/internal/infra/persistence/tables"
	"bizdesk/pkg/domain"
	"context"
	"fmt"
)

// StorageDriver identifies a concrete table backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / demo)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageBadger   StorageDriver = "badger"   // embedded badger key-value directory
)

// StorageConfig selects and parameterizes a table backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	BadgerDir   string
}

// OpenTableBackend opens the backend named by cfg.Driver. An empty driver
// selects sqlite.
func OpenTableBackend(ctx context.Context, cfg StorageConfig) (domain.TableBackend, error) {
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewBackend(), nil
	case "", StorageSQLite:
		b, err := sqlite.NewBackend(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return b, nil
	case StoragePostgres:
		b, err := postgres.NewBackend(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return b, nil
	case StorageBadger:
		b, err := badger.NewBackend(cfg.BadgerDir)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// OpenTableStore opens the configured backend and wraps it in a table store
// whose absorbed failures are logged and counted.
func OpenTableStore(ctx context.Context, cfg StorageConfig, logger Logger, metrics MetricsRecorder) (*tables.Store, error) {
	backend, err := OpenTableBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Driver, err)
	}
	if logger == nil {
		logger = noopLogger{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	store := tables.NewStore(backend, tables.WithFailureHook(StorageFailureHook(logger, metrics)))
	if err := store.Load(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load tables: %w", err)
	}
	return store, nil
}

// StorageFailureHook reports absorbed backend failures to the logger and the
// metrics recorder.
func StorageFailureHook(logger Logger, metrics MetricsRecorder) tables.FailureHook {
	return func(_ context.Context, entity domain.EntityType, op string, err error) {
		logger.Error("storage failure absorbed", "entity", entity, "op", op, "error", err)
		metrics.StorageFailure(string(entity), op)
	}
}
