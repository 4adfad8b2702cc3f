package snapshot_test

import (
	"bizdesk/internal/blob"
	"bizdesk/internal/core"
	"bizdesk/internal/infra/persistence/memory"
	"bizdesk/internal/infra/persistence/tables"
	"bizdesk/internal/seed"
	"bizdesk/internal/snapshot"
	"bizdesk/pkg/domain"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickingClock struct{ now time.Time }

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newManager(t *testing.T, blobs blob.Store) (*snapshot.Manager, *tables.Store) {
	t.Helper()
	store := tables.NewStore(memory.NewBackend())
	require.NoError(t, seed.Apply(context.Background(), store))
	clock := &tickingClock{now: time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)}
	return snapshot.NewManager(store, blobs, snapshot.WithClock(clock)), store
}

func TestKeyLayout(t *testing.T) {
	t.Parallel()
	key := snapshot.Key(time.Date(2024, 6, 15, 10, 30, 1, 5, time.FixedZone("x", 3600)))
	assert.Equal(t, "snapshots/20240615T093001.000000005Z.json", key)
}

func TestExportRestoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mgr, store := newManager(t, blob.NewMemory())

	info, err := mgr.Export(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(info.Key, snapshot.Prefix))
	assert.NotZero(t, info.Size)

	store.Remove(ctx, domain.EntityProduct, "1")
	store.Insert(ctx, "widgets", domain.Record{"name": "temp"})

	ds, err := mgr.Restore(ctx, info.Key)
	require.NoError(t, err)
	assert.NotEmpty(t, ds[domain.EntityProduct])

	products := store.List(ctx, domain.EntityProduct)
	assert.Len(t, products, 3, spew.Sdump(products))
	assert.Empty(t, store.List(ctx, "widgets"))
	chair, ok := store.Get(ctx, domain.EntityProduct, "1")
	require.True(t, ok)
	assert.Equal(t, float64(450), chair["unitPrice"])
}

func TestRestoreAcceptsBareName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mgr, _ := newManager(t, blob.NewMemory())
	info, err := mgr.Export(ctx)
	require.NoError(t, err)

	_, err = mgr.Restore(ctx, strings.TrimPrefix(info.Key, snapshot.Prefix))
	require.NoError(t, err)
}

func TestListAndLatestOverS3(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mgr, _ := newManager(t, blob.NewMockS3ForTests())

	_, ok, err := mgr.Latest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := mgr.Export(ctx)
	require.NoError(t, err)
	second, err := mgr.Export(ctx)
	require.NoError(t, err)

	infos, err := mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, first.Key, infos[0].Key)

	latest, ok, err := mgr.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, second.Key, latest.Key)
}

func TestRestoreMissingSnapshot(t *testing.T) {
	t.Parallel()
	mgr, _ := newManager(t, blob.NewMemory())

	_, err := mgr.Restore(context.Background(), "snapshots/none.json")
	var nf domain.ErrNotFound
	require.True(t, errors.As(err, &nf), "got %v", err)
	assert.Equal(t, "snapshots/none.json", nf.ID)
}

func TestRestoreRejectsCorruptDocument(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	blobs := blob.NewMemory()
	mgr, store := newManager(t, blobs)

	_, err := blobs.Put(ctx, "snapshots/bad.json", strings.NewReader(`{"version":1,"tables":{"products":{}}}`), "application/json")
	require.NoError(t, err)

	_, err = mgr.Restore(ctx, "snapshots/bad.json")
	require.Error(t, err)
	assert.Len(t, store.List(ctx, domain.EntityProduct), 3, "failed restore leaves tables alone")
}

func TestDecode(t *testing.T) {
	t.Parallel()
	ds, err := snapshot.Decode([]byte(`{"version":1,"created_at":"2024-06-15T10:30:00Z","tables":{"tasks":[{"id":"1","title":"call"}],"notes":[]}}`))
	require.NoError(t, err)
	assert.Equal(t, "call", ds[domain.EntityTask][0]["title"])
	assert.NotNil(t, ds["notes"])
	assert.Empty(t, ds["notes"])

	for name, doc := range map[string]string{
		"not json":    `{"version":`,
		"old version": `{"version":0,"tables":{}}`,
		"no tables":   `{"version":1}`,
		"bad entity":  `{"version":1,"tables":{"9x":[]}}`,
		"bad rows":    `{"version":1,"tables":{"tasks":[1,2]}}`,
	} {
		_, err := snapshot.Decode([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestManagerLogsExports(t *testing.T) {
	t.Parallel()
	var buf strings.Builder
	logger, err := core.NewKitLogger(&buf, "logfmt", "info")
	require.NoError(t, err)
	store := tables.NewStore(memory.NewBackend())
	mgr := snapshot.NewManager(store, blob.NewMemory(), snapshot.WithLogger(logger))

	_, err = mgr.Export(context.Background())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "snapshot exported")
}
