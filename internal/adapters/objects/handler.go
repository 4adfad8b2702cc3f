// Package objects exposes the record workflow, entity metadata and admin
// snapshot operations over HTTP.
package objects

import (
	"bizdesk/internal/blob"
	"bizdesk/internal/metadata"
	"bizdesk/pkg/domain"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/samber/lo"
)

const (
	objectsPrefix   = "/api/v1/objects/"
	entitiesPath    = "/api/v1/meta/entities"
	resetPath       = "/api/v1/admin/reset"
	snapshotsPath   = "/api/v1/admin/snapshots"
	restorePath     = "/api/v1/admin/snapshots/restore"
	maxPayloadBytes = 1 << 20
)

// Records is the mutation facade served under /api/v1/objects.
type Records interface {
	Create(ctx context.Context, entity domain.EntityType, payload domain.Record) (domain.Mutation, error)
	Update(ctx context.Context, entity domain.EntityType, id string, payload domain.Record) (domain.Mutation, bool, error)
	Delete(ctx context.Context, entity domain.EntityType, id string) (domain.Mutation, bool, error)
	List(ctx context.Context, entity domain.EntityType) ([]domain.Record, error)
	Get(ctx context.Context, entity domain.EntityType, id string) (domain.Record, bool, error)
}

// Catalog serves entity metadata.
type Catalog interface {
	Entities() []metadata.Entity
	Entity(name domain.EntityType) (metadata.Entity, bool)
}

// Snapshots archives and restores the full dataset.
type Snapshots interface {
	Export(ctx context.Context) (blob.Info, error)
	List(ctx context.Context) ([]blob.Info, error)
	Restore(ctx context.Context, key string) (domain.Dataset, error)
}

// Handler routes bizdesk API requests. Catalog, Snapshots and Reset are
// optional; their routes answer 404 when unset.
type Handler struct {
	Records   Records
	Catalog   Catalog
	Snapshots Snapshots
	Reset     func(ctx context.Context) error
}

// NewHandler constructs a handler over the record facade.
func NewHandler(records Records) *Handler {
	return &Handler{Records: records}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Records == nil {
		writeError(w, http.StatusInternalServerError, "record service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case strings.HasPrefix(path, objectsPrefix):
		h.handleObjects(w, r, strings.TrimPrefix(path, objectsPrefix))
	case path == entitiesPath || strings.HasPrefix(path, entitiesPath+"/"):
		if h.Catalog == nil {
			http.NotFound(w, r)
			return
		}
		h.handleMeta(w, r, strings.TrimPrefix(strings.TrimPrefix(path, entitiesPath), "/"))
	case path == resetPath:
		h.handleReset(w, r)
	case path == restorePath:
		h.handleRestore(w, r)
	case path == snapshotsPath:
		h.handleSnapshots(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleObjects(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	if len(segments) > 2 || segments[0] == "" {
		writeError(w, http.StatusNotFound, "object endpoint not found")
		return
	}
	entity := domain.EntityType(segments[0])
	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r, entity)
		case http.MethodPost:
			h.handleCreate(w, r, entity)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	id := segments[1]
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r, entity, id)
	case http.MethodPut, http.MethodPatch:
		h.handleUpdate(w, r, entity, id)
	case http.MethodDelete:
		h.handleDelete(w, r, entity, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, entity domain.EntityType) {
	records, err := h.Records.List(r.Context(), entity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, entity domain.EntityType, id string) {
	record, ok, err := h.Records.Get(r.Context(), entity, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": record})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, entity domain.EntityType) {
	payload, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	mut, err := h.Records.Create(r.Context(), entity, payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mutationResponse{Record: mut.Record, Notifications: mut.Notifications})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, entity domain.EntityType, id string) {
	payload, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	mut, found, err := h.Records.Update(r.Context(), entity, id, payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Record: mut.Record, Notifications: mut.Notifications})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, entity domain.EntityType, id string) {
	mut, found, err := h.Records.Delete(r.Context(), entity, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: true, Notifications: mut.Notifications})
}

func (h *Handler) handleMeta(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if name == "" {
		writeJSON(w, http.StatusOK, map[string]any{"entities": h.Catalog.Entities()})
		return
	}
	entity, ok := h.Catalog.Entity(domain.EntityType(name))
	if !ok {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	fieldName := func(f metadata.Field, _ int) string { return f.Name }
	writeJSON(w, http.StatusOK, entityResponse{
		Entity:   entity,
		Editable: lo.Map(entity.Editable(), fieldName),
		Derived:  lo.Map(entity.Derived(), fieldName),
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if h.Reset == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

func (h *Handler) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.Snapshots == nil {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		infos, err := h.Snapshots.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if infos == nil {
			infos = []blob.Info{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": infos})
	case http.MethodPost:
		info, err := h.Snapshots.Export(r.Context())
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, blob.ErrExists) {
				status = http.StatusConflict
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"snapshot": info})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type restoreRequest struct {
	Key string `json:"key"`
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	if h.Snapshots == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req restoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, "snapshot key required")
		return
	}
	ds, err := h.Snapshots.Restore(r.Context(), req.Key)
	if err != nil {
		var nf domain.ErrNotFound
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored": req.Key, "tables": len(ds)})
}

type mutationResponse struct {
	Record        domain.Record         `json:"record"`
	Notifications []domain.Notification `json:"notifications"`
}

type deleteResponse struct {
	Deleted       bool                  `json:"deleted"`
	Notifications []domain.Notification `json:"notifications"`
}

type entityResponse struct {
	Entity   metadata.Entity `json:"entity"`
	Editable []string        `json:"editable"`
	Derived  []string        `json:"derived"`
}

// decodeRecord reads a JSON object body. It writes the 400 response itself
// and reports false on failure.
func decodeRecord(w http.ResponseWriter, r *http.Request) (domain.Record, bool) {
	var payload domain.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&payload); err != nil || payload == nil {
		writeError(w, http.StatusBadRequest, "invalid record payload")
		return nil, false
	}
	return payload, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrInvalidEntity) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
