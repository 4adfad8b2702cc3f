package app

import (
	"bizdesk/internal/config"
	"bizdesk/pkg/domain"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("BIZDESK_STORAGE_DRIVER", "memory")
	t.Setenv("BIZDESK_BLOB_DRIVER", "memory")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestNewSeedsAndServes(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t), nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer func() { _ = a.Close() }()

	if err := a.SeedIfEmpty(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n := len(a.Store.List(ctx, domain.EntityProduct)); n != 3 {
		t.Fatalf("expected seeded products, got %d", n)
	}
	a.Store.Remove(ctx, domain.EntityProduct, "3")
	if err := a.SeedIfEmpty(ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if n := len(a.Store.List(ctx, domain.EntityProduct)); n != 2 {
		t.Fatalf("non-empty store must not be reseeded, got %d products", n)
	}

	h := a.Handler()
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodPut, "/api/v1/objects/orders/1", strings.NewReader(`{"discountValue":50}`)))
	if resp.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics status %d", resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, `bizdesk_mutation_duration_seconds_count{operation="update_orders",status="success"} 1`) {
		t.Fatalf("expected mutation histogram in metrics output:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected runtime collectors in metrics output")
	}

	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("healthz status %d", resp.Code)
	}
}

func TestResetRestoresSeed(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t), nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer func() { _ = a.Close() }()

	a.Store.Insert(ctx, domain.EntityTask, domain.Record{"title": "stray"})
	if err := a.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n := len(a.Store.List(ctx, domain.EntityTask)); n != 2 {
		t.Fatalf("expected seed tasks, got %d", n)
	}
}

func TestSeedDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.Seed.OnEmpty = false
	a, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer func() { _ = a.Close() }()
	if err := a.SeedIfEmpty(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n := len(a.Store.List(ctx, domain.EntityProduct)); n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
}

func TestNewRejectsBadBackends(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Blob.Driver = "s3"
	cfg.Blob.S3.Bucket = ""
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for s3 without bucket")
	}

	cfg = memoryConfig(t)
	cfg.Storage.Driver = "cassandra"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unknown storage driver")
	}
}
