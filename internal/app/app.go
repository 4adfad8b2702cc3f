// Package app assembles the bizdesk runtime from configuration: table store,
// workflow service, metadata catalog, snapshot manager and HTTP handler.
package app

import (
	"bizdesk/internal/adapters/objects"
	"bizdesk/internal/blob"
	"bizdesk/internal/config"
	"bizdesk/internal/core"
	"bizdesk/internal/infra/persistence/tables"
	"bizdesk/internal/metadata"
	"bizdesk/internal/seed"
	"bizdesk/internal/snapshot"
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App holds the wired runtime components.
type App struct {
	Config    config.Config
	Logger    core.Logger
	Registry  *prometheus.Registry
	Store     *tables.Store
	Service   *core.Service
	Catalog   *metadata.Catalog
	Blobs     blob.Store
	Snapshots *snapshot.Manager
}

// New opens storage and blob backends and wires the service.
func New(ctx context.Context, cfg config.Config, logger core.Logger) (*App, error) {
	if logger == nil {
		logger = core.NewNoopLogger()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return nil, err
	}
	catalog, err := metadata.Default()
	if err != nil {
		return nil, fmt.Errorf("load entity catalog: %w", err)
	}
	store, err := core.OpenTableStore(ctx, cfg.StorageConfig(), logger, metrics)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}

	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithCatalog(catalog),
		core.WithApprovalThreshold(cfg.ApprovalThreshold()),
	)
	logger.Info("bizdesk wired",
		"storage", cfg.Storage.Driver, "blob", blobs.Driver(), "approval_threshold", cfg.ApprovalThreshold().String())
	return &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  reg,
		Store:     store,
		Service:   svc,
		Catalog:   catalog,
		Blobs:     blobs,
		Snapshots: snapshot.NewManager(store, blobs, snapshot.WithLogger(logger)),
	}, nil
}

// Handler serves the API routes and /metrics.
func (a *App) Handler() http.Handler {
	api := objects.NewHandler(a.Service)
	api.Catalog = a.Catalog
	api.Snapshots = a.Snapshots
	api.Reset = a.Reset

	mux := http.NewServeMux()
	mux.Handle("/api/", api)
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// Reset replaces every table with the demo dataset.
func (a *App) Reset(ctx context.Context) error {
	if err := seed.Apply(ctx, a.Store); err != nil {
		return err
	}
	a.Logger.Info("tables reset to seed")
	return nil
}

// SeedIfEmpty loads the demo dataset when the store has no records and the
// configuration allows it.
func (a *App) SeedIfEmpty(ctx context.Context) error {
	if !a.Config.Seed.OnEmpty {
		return nil
	}
	applied, err := seed.ApplyIfEmpty(ctx, a.Store)
	if err != nil {
		return err
	}
	if applied {
		a.Logger.Info("empty store seeded")
	}
	return nil
}

// Close releases the table backend.
func (a *App) Close() error {
	return a.Store.Close()
}
