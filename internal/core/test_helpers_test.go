package core

import (
	"bizdesk/internal/infra/persistence/memory"
	"bizdesk/internal/infra/persistence/tables"
	"bizdesk/pkg/domain"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2024, time.June, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() Clock {
	return ClockFunc(func() time.Time { return fixedNow })
}

func newTestStore() *tables.Store {
	seq := 0
	return tables.NewStore(memory.NewBackend(), tables.WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}))
}

func newTestService(opts ...ServiceOption) *Service {
	opts = append([]ServiceOption{WithClock(fixedClock())}, opts...)
	return NewService(newTestStore(), opts...)
}

func mustCreate(t *testing.T, svc *Service, entity domain.EntityType, payload domain.Record) domain.Record {
	t.Helper()
	mut, err := svc.Create(context.Background(), entity, payload)
	if err != nil {
		t.Fatalf("create %s: %v", entity, err)
	}
	return mut.Record
}

func mustUpdate(t *testing.T, svc *Service, entity domain.EntityType, id string, payload domain.Record) Mutation {
	t.Helper()
	mut, ok, err := svc.Update(context.Background(), entity, id, payload)
	if err != nil || !ok {
		t.Fatalf("update %s %s: ok=%v err=%v", entity, id, ok, err)
	}
	return mut
}

func mustGet(t *testing.T, svc *Service, entity domain.EntityType, id string) domain.Record {
	t.Helper()
	rec, ok, err := svc.Get(context.Background(), entity, id)
	if err != nil || !ok {
		t.Fatalf("get %s %s: ok=%v err=%v", entity, id, ok, err)
	}
	return rec
}

func num(rec domain.Record, field string) decimal.Decimal {
	return rec.Decimal(field).OrElse(decimal.NewFromInt(-999999))
}

func requireNum(t *testing.T, rec domain.Record, field string, want string) {
	t.Helper()
	if got := num(rec, field); !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("expected %s=%s, got %s (record %v)", field, want, got, rec)
	}
}

func hasKind(notifications []domain.Notification, kind string) bool {
	for _, n := range notifications {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

func countKind(notifications []domain.Notification, kind string) int {
	n := 0
	for _, item := range notifications {
		if item.Kind == kind {
			n++
		}
	}
	return n
}

func decimalFromString(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("decimal %q: %v", raw, err)
	}
	return d
}
