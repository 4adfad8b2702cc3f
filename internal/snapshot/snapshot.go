// Package snapshot archives full table datasets into a blob store and
// restores them.
package snapshot

import (
	"bizdesk/internal/blob"
	"bizdesk/internal/core"
	"bizdesk/pkg/domain"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Prefix is the blob key prefix for every archived snapshot.
const Prefix = "snapshots/"

// FormatVersion is written into each document and checked on restore.
const FormatVersion = 1

const (
	keyLayout   = "20060102T150405.000000000Z"
	contentType = "application/json"
)

// snapshotEntity names snapshots in domain.ErrNotFound.
const snapshotEntity domain.EntityType = "snapshots"

// Source is a table store that can be exported and replaced wholesale.
type Source interface {
	Export(ctx context.Context) (domain.Dataset, error)
	Reset(ctx context.Context, dataset domain.Dataset) error
}

// Document is the archived JSON shape.
type Document struct {
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	Tables    domain.Dataset `json:"tables"`
}

// Manager exports and restores snapshots.
type Manager struct {
	source Source
	blobs  blob.Store
	clock  core.Clock
	logger core.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for snapshot keys.
func WithClock(clock core.Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger core.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager wires a snapshot manager.
func NewManager(source Source, blobs blob.Store, opts ...Option) *Manager {
	m := &Manager{
		source: source,
		blobs:  blobs,
		clock:  core.ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger: core.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Key returns the blob key for a snapshot taken at t.
func Key(t time.Time) string {
	return Prefix + t.UTC().Format(keyLayout) + ".json"
}

// Export writes every table to a new snapshot blob.
func (m *Manager) Export(ctx context.Context) (blob.Info, error) {
	ds, err := m.source.Export(ctx)
	if err != nil {
		return blob.Info{}, fmt.Errorf("export tables: %w", err)
	}
	now := m.clock.Now().UTC()
	doc := Document{Version: FormatVersion, CreatedAt: now, Tables: ds}
	if doc.Tables == nil {
		doc.Tables = domain.Dataset{}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode snapshot: %w", err)
	}
	key := Key(now)
	info, err := m.blobs.Put(ctx, key, bytes.NewReader(body), contentType)
	if err != nil {
		return blob.Info{}, fmt.Errorf("store snapshot %s: %w", key, err)
	}
	m.logger.Info("snapshot exported", "key", key, "tables", len(ds), "bytes", info.Size)
	return info, nil
}

// List returns the archived snapshots, oldest first.
func (m *Manager) List(ctx context.Context) ([]blob.Info, error) {
	infos, err := m.blobs.List(ctx, Prefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Latest returns the most recent snapshot, or false when none exist.
func (m *Manager) Latest(ctx context.Context) (blob.Info, bool, error) {
	infos, err := m.List(ctx)
	if err != nil || len(infos) == 0 {
		return blob.Info{}, false, err
	}
	return infos[len(infos)-1], true, nil
}

// Restore replaces every table with the contents of the snapshot at key.
// Missing snapshots yield domain.ErrNotFound.
func (m *Manager) Restore(ctx context.Context, key string) (domain.Dataset, error) {
	if !strings.HasPrefix(key, Prefix) {
		key = Prefix + key
	}
	_, rc, err := m.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, domain.ErrNotFound{Entity: snapshotEntity, ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	ds, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", key, err)
	}
	if err := m.source.Reset(ctx, ds); err != nil {
		return nil, fmt.Errorf("restore snapshot %s: %w", key, err)
	}
	m.logger.Info("snapshot restored", "key", key, "tables", len(ds))
	return ds, nil
}

// Decode walks the tables of a snapshot document.
func Decode(data []byte) (domain.Dataset, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid snapshot json")
	}
	if v := gjson.GetBytes(data, "version"); v.Int() != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %s", v.Raw)
	}
	tablesVal := gjson.GetBytes(data, "tables")
	if !tablesVal.IsObject() {
		return nil, errors.New("snapshot has no tables object")
	}
	ds := domain.Dataset{}
	var walkErr error
	tablesVal.ForEach(func(name, rows gjson.Result) bool {
		entity := domain.EntityType(name.String())
		if err := domain.ValidateEntity(entity); err != nil {
			walkErr = err
			return false
		}
		if !rows.IsArray() {
			walkErr = fmt.Errorf("table %s is not an array", entity)
			return false
		}
		table, err := domain.DecodeTable([]byte(rows.Raw))
		if err != nil {
			walkErr = fmt.Errorf("table %s: %w", entity, err)
			return false
		}
		ds[entity] = table
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return ds, nil
}
