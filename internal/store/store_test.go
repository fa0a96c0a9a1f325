package store_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-core/internal/store"
	"transit-core/internal/testutil"
)

type note struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

func (note) Collection() store.Collection { return store.Areas }
func (n note) Key() string                { return strconv.Itoa(n.ID) }

type orphan struct{}

func (orphan) Collection() store.Collection { return store.Collection(99) }
func (orphan) Key() string                  { return "x" }

func TestCollections(t *testing.T) {
	names := make([]string, 0, len(store.Collections()))
	for _, c := range store.Collections() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"areas", "stops", "routes", "trips", "paths", "segments", "schedules"}, names)

	assert.Equal(t, store.ByFromTo, store.Segments.Identification())
	assert.Equal(t, store.ByIDDate, store.Schedules.Identification())
	assert.Equal(t, store.ByID, store.Trips.Identification())
	assert.Equal(t, "paths", store.Paths.String())
	assert.Empty(t, store.Collection(0).Name())
}

// exerciseRepository runs the shared Repository contract against r.
func exerciseRepository(t *testing.T, r store.Repository) {
	t.Helper()
	ctx := context.Background()

	_, err := r.Get(ctx, store.Areas, "1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = store.Load[note](ctx, r, store.Areas, "1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, r.Put(ctx, note{ID: 1, Text: "a"}))
	require.NoError(t, r.Put(ctx, note{ID: 2, Text: "b"}))
	require.NoError(t, r.Put(ctx, note{ID: 1, Text: "c"}))

	n, err := r.Count(ctx, store.Areas)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.Load[note](ctx, r, store.Areas, "1")
	require.NoError(t, err)
	assert.Equal(t, note{ID: 1, Text: "c"}, got)

	require.NoError(t, r.Delete(ctx, store.Areas, "1"))
	_, err = r.Get(ctx, store.Areas, "1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, r.Delete(ctx, store.Areas, "1"), "deleting twice is fine")

	n, err = r.Count(ctx, store.Stops)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Error(t, r.Put(ctx, orphan{}))
}

func TestInMemoryRepository(t *testing.T) {
	r := store.NewInMemoryRepository()
	exerciseRepository(t, r)

	// returned bytes are a copy
	require.NoError(t, r.Put(context.Background(), note{ID: 5, Text: "x"}))
	raw, err := r.Get(context.Background(), store.Areas, "5")
	require.NoError(t, err)
	raw[0] = '!'
	again, err := r.Get(context.Background(), store.Areas, "5")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":5,"text":"x"}`, string(again))
}

func TestPostgresRepository(t *testing.T) {
	tx := testutil.NewTx(t)
	exerciseRepository(t, store.NewPostgresRepository(tx))
}
