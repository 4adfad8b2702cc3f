package objects_test

import (
	"bizdesk/internal/adapters/objects"
	"bizdesk/internal/blob"
	"bizdesk/internal/core"
	"bizdesk/internal/infra/persistence/memory"
	"bizdesk/internal/infra/persistence/tables"
	"bizdesk/internal/metadata"
	"bizdesk/internal/seed"
	"bizdesk/internal/snapshot"
	"bizdesk/pkg/domain"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type mutationBody struct {
	Record        domain.Record         `json:"record"`
	Notifications []domain.Notification `json:"notifications"`
	Deleted       bool                  `json:"deleted"`
	Error         string                `json:"error"`
}

type fixture struct {
	handler *objects.Handler
	store   *tables.Store
}

func setupHandler(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := tables.NewStore(memory.NewBackend())
	if err := seed.Apply(ctx, store); err != nil {
		t.Fatalf("seed: %v", err)
	}
	catalog, err := metadata.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	clock := core.ClockFunc(func() time.Time { return time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC) })
	svc := core.NewService(store, core.WithClock(clock), core.WithCatalog(catalog))

	h := objects.NewHandler(svc)
	h.Catalog = catalog
	h.Snapshots = snapshot.NewManager(store, blob.NewMemory())
	h.Reset = func(ctx context.Context) error { return seed.Apply(ctx, store) }
	return fixture{handler: h, store: store}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", resp.Body.String(), err)
	}
	return out
}

func kinds(ns []domain.Notification) map[string]int {
	out := map[string]int{}
	for _, n := range ns {
		out[n.Kind]++
	}
	return out
}

func TestCreateProductDerivesStockStatus(t *testing.T) {
	f := setupHandler(t)

	resp := f.do(t, http.MethodPost, "/api/v1/objects/products", `{"name":"Lamp","stockQuantity":2,"stockMinimum":2,"stockStatus":"Normal"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := decode[mutationBody](t, resp)
	if body.Record[domain.FieldStockStatus] != "Critical" {
		t.Fatalf("expected derived Critical, got %v", body.Record[domain.FieldStockStatus])
	}
	if body.Record.ID() == "" {
		t.Fatalf("expected assigned id")
	}
	if body.Notifications == nil || len(body.Notifications) != 0 {
		t.Fatalf("expected empty notification list, got %v", body.Notifications)
	}
}

func TestListAndGet(t *testing.T) {
	f := setupHandler(t)

	resp := f.do(t, http.MethodGet, "/api/v1/objects/customers", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("list status %d", resp.Code)
	}
	list := decode[struct {
		Records []domain.Record `json:"records"`
	}](t, resp)
	if len(list.Records) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(list.Records))
	}
	if _, ok := list.Records[0][domain.FieldDaysSinceLastPurchase]; !ok {
		t.Fatalf("expected read-time projection on %v", list.Records[0])
	}

	resp = f.do(t, http.MethodGet, "/api/v1/objects/customers/1/", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("get status %d", resp.Code)
	}
	one := decode[mutationBody](t, resp)
	if one.Record["name"] != "Blue Harbor Ltd" {
		t.Fatalf("unexpected record %v", one.Record)
	}

	resp = f.do(t, http.MethodGet, "/api/v1/objects/customers/99", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestApproveOrderRunsCascade(t *testing.T) {
	f := setupHandler(t)

	resp := f.do(t, http.MethodPut, "/api/v1/objects/orders/1", `{"status":"Approved"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", resp.Code, resp.Body.String())
	}
	body := decode[mutationBody](t, resp)
	if body.Record[domain.FieldStatus] != "Approved" {
		t.Fatalf("expected Approved, got %v", body.Record[domain.FieldStatus])
	}
	got := kinds(body.Notifications)
	if got[domain.KindSaleApproved] != 1 || got[domain.KindStockUpdated] != 2 {
		t.Fatalf("unexpected notifications %v", body.Notifications)
	}

	desk, _ := f.store.Get(context.Background(), domain.EntityProduct, "2")
	if desk[domain.FieldStockQuantity] != float64(2) || desk[domain.FieldStockStatus] != "Critical" {
		t.Fatalf("unexpected desk after sale %v", desk)
	}
	customer, _ := f.store.Get(context.Background(), domain.EntityCustomer, "1")
	if customer[domain.FieldLastPurchaseDate] != "2024-06-15" {
		t.Fatalf("expected purchase stamp, got %v", customer[domain.FieldLastPurchaseDate])
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	f := setupHandler(t)

	resp := f.do(t, http.MethodPut, "/api/v1/objects/orders/404", `{"status":"Approved"}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if body := decode[mutationBody](t, resp); body.Error != "record not found" {
		t.Fatalf("unexpected error %q", body.Error)
	}
}

func TestDeleteLineItemRecomputesOrder(t *testing.T) {
	f := setupHandler(t)

	resp := f.do(t, http.MethodDelete, "/api/v1/objects/orderLineItems/1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	if body := decode[mutationBody](t, resp); !body.Deleted {
		t.Fatalf("expected deleted flag")
	}
	order, _ := f.store.Get(context.Background(), domain.EntityOrder, "1")
	if order[domain.FieldItemsTotal] != float64(1200) || order[domain.FieldFinalTotal] != float64(1100) {
		t.Fatalf("unexpected totals %v", order)
	}

	resp = f.do(t, http.MethodDelete, "/api/v1/objects/orderLineItems/1", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", resp.Code)
	}
}

func TestRequestErrors(t *testing.T) {
	f := setupHandler(t)

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/api/v1/objects/9bad", "", http.StatusBadRequest},
		{http.MethodPost, "/api/v1/objects/products", `{"name":`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/objects/products", `[1]`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/objects/products", "", http.StatusBadRequest},
		{http.MethodPut, "/api/v1/objects/products/1", `null`, http.StatusBadRequest},
		{http.MethodPatch, "/api/v1/objects/products", `{}`, http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/v1/objects/products/1", `{}`, http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/objects/products/1/extra", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/objects/", "", http.StatusNotFound},
		{http.MethodGet, "/api/v2/objects/products", "", http.StatusNotFound},
		{http.MethodPost, "/api/v1/meta/entities", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/admin/reset", "", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/v1/admin/snapshots", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		resp := f.do(t, tc.method, tc.path, tc.body)
		if resp.Code != tc.want {
			t.Errorf("%s %s: expected %d, got %d (%s)", tc.method, tc.path, tc.want, resp.Code, resp.Body.String())
		}
	}
}

func TestMetadataRoutes(t *testing.T) {
	f := setupHandler(t)

	resp := f.do(t, http.MethodGet, "/api/v1/meta/entities", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	list := decode[struct {
		Entities []metadata.Entity `json:"entities"`
	}](t, resp)
	if len(list.Entities) != len(domain.BuiltinEntities()) {
		t.Fatalf("expected %d entities, got %d", len(domain.BuiltinEntities()), len(list.Entities))
	}

	resp = f.do(t, http.MethodGet, "/api/v1/meta/entities/orderLineItems", "")
	one := decode[struct {
		Entity   metadata.Entity `json:"entity"`
		Editable []string        `json:"editable"`
		Derived  []string        `json:"derived"`
	}](t, resp)
	if one.Entity.Label != "Order lines" || len(one.Derived) != 1 || one.Derived[0] != domain.FieldSubtotal {
		t.Fatalf("unexpected entity metadata %+v", one)
	}
	if len(one.Editable) != 4 {
		t.Fatalf("expected 4 editable fields, got %v", one.Editable)
	}

	resp = f.do(t, http.MethodGet, "/api/v1/meta/entities/widgets", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown entity, got %d", resp.Code)
	}
}

func TestSnapshotRoutes(t *testing.T) {
	f := setupHandler(t)

	resp := f.do(t, http.MethodPost, "/api/v1/admin/snapshots", "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("export status %d %s", resp.Code, resp.Body.String())
	}
	created := decode[struct {
		Snapshot blob.Info `json:"snapshot"`
	}](t, resp)
	if !strings.HasPrefix(created.Snapshot.Key, snapshot.Prefix) {
		t.Fatalf("unexpected key %q", created.Snapshot.Key)
	}

	resp = f.do(t, http.MethodGet, "/api/v1/admin/snapshots", "")
	listed := decode[struct {
		Snapshots []blob.Info `json:"snapshots"`
	}](t, resp)
	if len(listed.Snapshots) != 1 || listed.Snapshots[0].Key != created.Snapshot.Key {
		t.Fatalf("unexpected listing %v", listed.Snapshots)
	}

	f.do(t, http.MethodDelete, "/api/v1/objects/products/1", "")
	resp = f.do(t, http.MethodPost, "/api/v1/admin/snapshots/restore", `{"key":"`+created.Snapshot.Key+`"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("restore status %d %s", resp.Code, resp.Body.String())
	}
	if _, ok := f.store.Get(context.Background(), domain.EntityProduct, "1"); !ok {
		t.Fatalf("expected product restored")
	}

	resp = f.do(t, http.MethodPost, "/api/v1/admin/snapshots/restore", `{"key":"snapshots/missing.json"}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing snapshot, got %d", resp.Code)
	}
	resp = f.do(t, http.MethodPost, "/api/v1/admin/snapshots/restore", `{}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key, got %d", resp.Code)
	}
}

func TestResetRoute(t *testing.T) {
	f := setupHandler(t)

	f.do(t, http.MethodPost, "/api/v1/objects/tasks", `{"title":"extra"}`)
	resp := f.do(t, http.MethodPost, "/api/v1/admin/reset", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("reset status %d", resp.Code)
	}
	if n := len(f.store.List(context.Background(), domain.EntityTask)); n != 2 {
		t.Fatalf("expected seed tasks after reset, got %d", n)
	}
}

func TestOptionalRoutesDisabled(t *testing.T) {
	store := tables.NewStore(memory.NewBackend())
	h := objects.NewHandler(core.NewService(store))
	for _, path := range []string{"/api/v1/meta/entities", "/api/v1/admin/reset", "/api/v1/admin/snapshots", "/api/v1/admin/snapshots/restore"} {
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, path, nil))
		if resp.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	(&objects.Handler{}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/objects/products", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without service, got %d", resp.Code)
	}
}
