package badger

import (
	"bizdesk/pkg/domain"
	"context"
	"testing"
)

func TestBadgerBackendPersistAndReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := NewBackend(dir)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	rows := []domain.Record{{"id": "c1", "legalName": "Acme Ltda"}}
	if err := backend.SaveTable(ctx, domain.EntityCustomer, rows); err != nil {
		t.Fatalf("SaveTable: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewBackend(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := reopened.LoadTable(ctx, domain.EntityCustomer)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if len(got) != 1 || got[0]["legalName"] != "Acme Ltda" {
		t.Fatalf("unexpected rows %#v", got)
	}
}

func TestBadgerBackendInMemoryTablesAndDrop(t *testing.T) {
	ctx := context.Background()
	backend, err := NewBackend("")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	missing, err := backend.LoadTable(ctx, domain.EntityOrder)
	if err != nil || len(missing) != 0 {
		t.Fatalf("expected empty table, got %#v (%v)", missing, err)
	}
	for _, entity := range []domain.EntityType{domain.EntityProduct, domain.EntityOrder} {
		if err := backend.SaveTable(ctx, entity, nil); err != nil {
			t.Fatalf("SaveTable: %v", err)
		}
	}
	tables, err := backend.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(tables) != 2 || tables[0] != domain.EntityOrder || tables[1] != domain.EntityProduct {
		t.Fatalf("unexpected tables %v", tables)
	}
	if err := backend.DropTable(ctx, domain.EntityOrder); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	tables, _ = backend.Tables(ctx)
	if len(tables) != 1 {
		t.Fatalf("expected one table after drop, got %v", tables)
	}
}
