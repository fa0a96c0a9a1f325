package ingest_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-core/internal/area"
	"transit-core/internal/feed"
	"transit-core/internal/ingest"
	"transit-core/internal/metrics"
	"transit-core/internal/network"
	"transit-core/internal/path"
	"transit-core/internal/publisher"
	"transit-core/internal/schedule"
	"transit-core/internal/store"
	"transit-core/internal/trip"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []publisher.TripMessage
}

func (f *fakePublisher) PublishTrip(msg publisher.TripMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakePublisher) messages() []publisher.TripMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publisher.TripMessage(nil), f.msgs...)
}

var serviceDay = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func raw(id string, delay float64) feed.Trip {
	return feed.Trip{
		ID:        id,
		Delay:     ptr(delay),
		Direction: 0,
		NextStop:  15,
		Route:     400,
		Type:      "u",
		Headsign:  "Centro",
		StopTimes: []feed.StopTime{
			{Sequence: 1, Stop: 12, Arrival: feed.NewClock(8, 0, 0), Departure: feed.NewClock(8, 0, 0)},
			{Sequence: 2, Stop: 15, Arrival: feed.NewClock(8, 4, 0), Departure: feed.NewClock(8, 5, 0)},
			{Sequence: 3, Stop: 18, Arrival: feed.NewClock(8, 10, 0), Departure: feed.NewClock(8, 10, 0)},
		},
	}
}

func newPipeline(t *testing.T, workers int) (*ingest.Pipeline, *store.InMemoryRepository, *fakePublisher) {
	t.Helper()
	repo := store.NewInMemoryRepository()
	pub := &fakePublisher{}
	p := ingest.New(ingest.Config{
		Repo:      repo,
		Publisher: pub,
		Logger:    zerolog.Nop(),
		Workers:   workers,
	})
	return p, repo, pub
}

// flakyRepo fails the first Put into each collection listed in failOnce.
type flakyRepo struct {
	*store.InMemoryRepository
	mu       sync.Mutex
	failOnce map[store.Collection]bool
}

var errFlaky = errors.New("write failed")

func (r *flakyRepo) Put(ctx context.Context, doc store.Document) error {
	r.mu.Lock()
	fail := r.failOnce[doc.Collection()]
	delete(r.failOnce, doc.Collection())
	r.mu.Unlock()
	if fail {
		return errFlaky
	}
	return r.InMemoryRepository.Put(ctx, doc)
}

func count(t *testing.T, repo store.Repository, c store.Collection) int {
	t.Helper()
	n, err := repo.Count(context.Background(), c)
	require.NoError(t, err)
	return n
}

func TestProcess_CreatesTripPathSchedule(t *testing.T) {
	ctx := context.Background()
	p, repo, pub := newPipeline(t, 2)

	res, err := p.Process(ctx, serviceDay, []feed.Trip{raw("T1", 30)})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Batch)
	assert.Equal(t, 1, res.Received)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Paths)
	assert.Equal(t, 2, res.Segments)
	assert.Equal(t, 1, res.Schedules)
	assert.Zero(t, res.Rejected)
	assert.Zero(t, res.Failed)

	assert.Equal(t, 1, count(t, repo, store.Trips))
	assert.Equal(t, 1, count(t, repo, store.Paths))
	assert.Equal(t, 2, count(t, repo, store.Segments))
	assert.Equal(t, 1, count(t, repo, store.Schedules))

	stored, err := store.Load[trip.Trip](ctx, repo, store.Trips, "T1")
	require.NoError(t, err)
	want, _, err := trip.Normalize(raw("T1", 30))
	require.NoError(t, err)
	assert.True(t, trip.DeepEqual(want, stored))

	pth, err := store.Load[path.Path](ctx, repo, store.Paths, stored.Path)
	require.NoError(t, err)
	assert.Equal(t, []uint16{12, 15, 18}, pth.Sequence)
	assert.Equal(t, network.Bus, pth.RoutingType)

	sched := schedule.FromID("T1", time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC))
	_, err = repo.Get(ctx, store.Schedules, sched.Key())
	require.NoError(t, err)

	msgs := pub.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, publisher.Created, msgs[0].Change)
	assert.Equal(t, "T1", msgs[0].TripID)
	assert.Equal(t, res.Batch, msgs[0].Batch)
}

func TestProcess_MergeAndChangeDetection(t *testing.T) {
	ctx := context.Background()
	p, repo, pub := newPipeline(t, 3)

	_, err := p.Process(ctx, serviceDay, []feed.Trip{raw("T1", 30)})
	require.NoError(t, err)

	res, err := p.Process(ctx, serviceDay, []feed.Trip{raw("T1", 30)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.Zero(t, res.Schedules, "schedule already stored")
	assert.Len(t, pub.messages(), 1, "unchanged trips are not announced")

	update := raw("T1", 95.5)
	update.NextStop = 0
	update.Headsign = "ignored"
	update.StopTimes[1].Arrival = feed.NewClock(8, 6, 0)
	res, err = p.Process(ctx, serviceDay, []feed.Trip{update})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	stored, err := store.Load[trip.Trip](ctx, repo, store.Trips, "T1")
	require.NoError(t, err)
	assert.Equal(t, int32(95), stored.Delay)
	assert.Nil(t, stored.NextStop)
	assert.Equal(t, "Centro", stored.Headsign)
	st, _ := stored.Times.Get(15)
	assert.Equal(t, 4*time.Minute, st.Arrival, "times keep the first snapshot")

	msgs := pub.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, publisher.Updated, msgs[1].Change)
	assert.Equal(t, int32(95), msgs[1].Delay)
	assert.Equal(t, 1, count(t, repo, store.Schedules))
}

func TestProcess_SnapshotsOfOneTripApplyInOrder(t *testing.T) {
	ctx := context.Background()
	p, repo, pub := newPipeline(t, 4)

	res, err := p.Process(ctx, serviceDay, []feed.Trip{raw("T1", 10), raw("T2", 0), raw("T1", 20), raw("T1", 40)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, res.Paths, "both trips share a path")

	stored, err := store.Load[trip.Trip](ctx, repo, store.Trips, "T1")
	require.NoError(t, err)
	assert.Equal(t, int32(40), stored.Delay)
	assert.Len(t, pub.messages(), 4)
}

func TestProcess_Rejections(t *testing.T) {
	ctx := context.Background()
	repo := store.NewInMemoryRepository()
	c := metrics.NewCollector(2)
	p := ingest.New(ingest.Config{Repo: repo, Metrics: c, Logger: zerolog.Nop(), Workers: 2})

	noRef := raw("A", 0)
	noRef.StopTimes = noRef.StopTimes[1:]
	badDir := raw("B", 0)
	badDir.Direction = 3
	badType := raw("C", 0)
	badType.Type = "z"

	res, err := p.Process(ctx, serviceDay, []feed.Trip{noRef, badDir, badType, raw("D", 0)})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rejected)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, count(t, repo, store.Trips))

	assert.Equal(t, 4.0, testutil.ToFloat64(c.TripsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TripsRejected.WithLabelValues("missing_reference")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TripsRejected.WithLabelValues("direction")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TripsRejected.WithLabelValues("classification")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TripsWritten.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Schedules))
}

func TestProcess_RolloverSchedule(t *testing.T) {
	ctx := context.Background()
	p, repo, _ := newPipeline(t, 1)

	night := raw("N1", 0)
	night.StopTimes = []feed.StopTime{
		{Sequence: 1, Stop: 12, Arrival: feed.NewClock(2, 29, 0), Departure: feed.NewClock(2, 30, 0)},
		{Sequence: 2, Stop: 15, Arrival: feed.NewClock(2, 40, 0), Departure: feed.NewClock(2, 40, 0)},
	}
	_, err := p.Process(ctx, serviceDay, []feed.Trip{night})
	require.NoError(t, err)

	want := schedule.FromID("N1", time.Date(2024, time.June, 2, 2, 30, 0, 0, time.UTC))
	_, err = repo.Get(ctx, store.Schedules, want.Key())
	assert.NoError(t, err)
}

func TestLoadNetwork(t *testing.T) {
	ctx := context.Background()
	p, repo, _ := newPipeline(t, 2)

	nres, err := p.LoadNetwork(ctx, ingest.Network{
		Areas: []feed.Area{{ID: 1, Label: "Trento", Type: "u"}, {ID: 2, Label: "?", Type: "q"}},
		Stops: []feed.Stop{
			{ID: 12, Lat: 46.07, Lon: 11.12, Type: "u"},
			{ID: 15, Lat: 46.08, Lon: 11.13, Type: "u"},
			{ID: 18, Lat: 46.09, Lon: 11.14, Type: "e"},
		},
		Routes: []feed.Route{{ID: 400, Type: 2, Area: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, ingest.NetworkResult{Areas: 1, Stops: 3, Routes: 1, Rejected: 1}, nres)
	assert.Equal(t, 3, count(t, repo, store.Stops))

	res, err := p.Process(ctx, serviceDay, []feed.Trip{raw("T1", 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.UnknownStops, "stop 18 is extra-urban, trip is urban")

	stored, err := store.Load[trip.Trip](ctx, repo, store.Trips, "T1")
	require.NoError(t, err)
	pth, err := store.Load[path.Path](ctx, repo, store.Paths, stored.Path)
	require.NoError(t, err)
	assert.Equal(t, network.Railway, pth.RoutingType)

	seg, err := store.Load[path.Segment](ctx, repo, store.Segments, "12-15-u")
	require.NoError(t, err)
	require.Len(t, seg.Geometry, 2)
	assert.InDelta(t, 46.07, seg.Geometry[0].Lat, 1e-9)

	seg, err = store.Load[path.Segment](ctx, repo, store.Segments, "15-18-u")
	require.NoError(t, err)
	assert.Empty(t, seg.Geometry)

	_, err = repo.Get(ctx, store.Stops, network.Stop{ID: 18, Type: area.ExtraUrban}.Key())
	assert.NoError(t, err)
}

func TestProcess_Canceled(t *testing.T) {
	p, _, _ := newPipeline(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trips := make([]feed.Trip, 50)
	for i := range trips {
		trips[i] = raw("T", 0)
	}
	_, err := p.Process(ctx, serviceDay, trips)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcess_FailedWritesAreRetried(t *testing.T) {
	for _, c := range []store.Collection{store.Paths, store.Segments, store.Trips} {
		t.Run(c.Name(), func(t *testing.T) {
			ctx := context.Background()
			repo := &flakyRepo{InMemoryRepository: store.NewInMemoryRepository(), failOnce: map[store.Collection]bool{c: true}}
			mcol := metrics.NewCollector(1)
			pub := &fakePublisher{}
			p := ingest.New(ingest.Config{Repo: repo, Publisher: pub, Metrics: mcol, Logger: zerolog.Nop(), Workers: 1})

			res, err := p.Process(ctx, serviceDay, []feed.Trip{raw("T1", 30)})
			require.NoError(t, err)
			assert.Equal(t, 1, res.Failed)
			assert.Zero(t, res.Created)
			assert.Zero(t, count(t, repo, store.Trips), "trip is stored only after its path")
			assert.Zero(t, count(t, repo, store.Schedules))
			assert.Empty(t, pub.messages())
			assert.Equal(t, 1.0, testutil.ToFloat64(mcol.StoreErrors))

			res, err = p.Process(ctx, serviceDay, []feed.Trip{raw("T1", 30)})
			require.NoError(t, err)
			assert.Zero(t, res.Failed)
			assert.Equal(t, 1, res.Created)
			assert.Equal(t, 1, count(t, repo, store.Trips))
			assert.Equal(t, 1, count(t, repo, store.Paths))
			assert.Equal(t, 2, count(t, repo, store.Segments))
			assert.Equal(t, 1, count(t, repo, store.Schedules))
			assert.Equal(t, 1.0, testutil.ToFloat64(mcol.PathsWritten))
			require.Len(t, pub.messages(), 1)
			assert.Equal(t, publisher.Created, pub.messages()[0].Change)
		})
	}
}
