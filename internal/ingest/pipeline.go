// Package ingest turns batches of feed trips into stored trips, paths,
// segments and schedules, and announces what changed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"transit-core/internal/area"
	"transit-core/internal/feed"
	"transit-core/internal/geo"
	"transit-core/internal/network"
	"transit-core/internal/path"
	"transit-core/internal/publisher"
	"transit-core/internal/schedule"
	"transit-core/internal/store"
	"transit-core/internal/trip"
)

// Publisher receives a message for every trip that was created or updated.
type Publisher interface {
	PublishTrip(msg publisher.TripMessage) error
}

type Metrics interface {
	TripReceived()
	TripRejected(reason string)
	TripWritten(change string)
	TripUnchanged()
	PathWritten()
	ScheduleWritten()
	UnknownStop()
	StoreError()
	BatchObserve(d time.Duration)
}

type Config struct {
	Repo      store.Repository
	Publisher Publisher
	Metrics   Metrics
	Logger    zerolog.Logger
	// Workers bounds the number of trips processed at once. Defaults to 4.
	Workers int
	// Location is the service-day time zone. Defaults to UTC.
	Location *time.Location
}

// Pipeline is safe for concurrent use. LoadNetwork waits for running batches
// and blocks new ones until the stop index is rebuilt.
type Pipeline struct {
	repo    store.Repository
	pub     Publisher
	metrics Metrics
	logger  zerolog.Logger
	workers int
	loc     *time.Location

	mu     sync.RWMutex
	stops  *area.Partitioned[network.Stop]
	routes map[uint16]network.Route

	// pathMu serializes path creation; trips on different workers often
	// share a path.
	pathMu sync.Mutex
}

func New(cfg Config) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Pipeline{
		repo:    cfg.Repo,
		pub:     cfg.Publisher,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With().Str("component", "ingest").Logger(),
		workers: workers,
		loc:     loc,
		stops:   area.NewPartitioned[network.Stop](),
		routes:  make(map[uint16]network.Route),
	}
}

// Result counts what one batch did.
type Result struct {
	Batch        string
	Received     int
	Rejected     int
	Created      int
	Updated      int
	Unchanged    int
	Paths        int
	Segments     int
	Schedules    int
	UnknownStops int
	Failed       int
	Duration     time.Duration
}

type outcome struct {
	rejected     bool
	failed       bool
	change       publisher.Change
	unchanged    bool
	path         bool
	segments     int
	schedule     bool
	unknownStops int
}

func (r *Result) add(o outcome) {
	switch {
	case o.rejected:
		r.Rejected++
		return
	case o.failed:
		r.Failed++
	case o.change == publisher.Created:
		r.Created++
	case o.change == publisher.Updated:
		r.Updated++
	case o.unchanged:
		r.Unchanged++
	}
	if o.path {
		r.Paths++
	}
	r.Segments += o.segments
	if o.schedule {
		r.Schedules++
	}
	r.UnknownStops += o.unknownStops
}

// Process handles raws as trips running on the service date date. Snapshots
// of the same trip are applied in input order. Record-level problems are
// counted in the Result; the error is non-nil only when ctx ends first.
func (p *Pipeline) Process(ctx context.Context, date time.Time, raws []feed.Trip) (Result, error) {
	start := time.Now()
	res := Result{Batch: uuid.NewString(), Received: len(raws)}
	logger := p.logger.With().Str("batch", res.Batch).Logger()

	y, m, d := date.In(p.loc).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, p.loc)

	p.mu.RLock()
	defer p.mu.RUnlock()

	// Each trip id always lands on the same worker so its snapshots are
	// read-modify-written in order.
	queues := make([]chan feed.Trip, p.workers)
	outcomes := make(chan outcome, p.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan feed.Trip)
		wg.Add(1)
		go func(q <-chan feed.Trip) {
			defer wg.Done()
			for raw := range q {
				o := p.handle(ctx, logger, res.Batch, day, raw)
				select {
				case outcomes <- o:
				case <-ctx.Done():
				}
			}
		}(queues[i])
	}

	go func() {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		for _, raw := range raws {
			if p.metrics != nil {
				p.metrics.TripReceived()
			}
			select {
			case queues[p.shard(raw.ID)] <- raw:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		res.add(o)
	}

	res.Duration = time.Since(start)
	if p.metrics != nil {
		p.metrics.BatchObserve(res.Duration)
	}
	if err := ctx.Err(); err != nil {
		logger.Warn().Err(err).Int("received", res.Received).Msg("batch interrupted")
		return res, err
	}
	logger.Info().
		Int("received", res.Received).
		Int("rejected", res.Rejected).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("unchanged", res.Unchanged).
		Int("schedules", res.Schedules).
		Int("failed", res.Failed).
		Dur("took", res.Duration).
		Msg("batch processed")
	return res, nil
}

func (p *Pipeline) shard(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(p.workers))
}

func (p *Pipeline) handle(ctx context.Context, logger zerolog.Logger, batch string, day time.Time, raw feed.Trip) outcome {
	var o outcome
	logger = logger.With().Str("trip_id", raw.ID).Logger()

	t, dep, err := trip.Normalize(raw)
	if err != nil {
		reason := rejectReason(err)
		logger.Warn().Err(err).Str("reason", reason).Msg("trip rejected")
		if p.metrics != nil {
			p.metrics.TripRejected(reason)
		}
		o.rejected = true
		return o
	}

	o.unknownStops = p.checkStops(logger, t)

	current, err := store.Load[trip.Trip](ctx, p.repo, store.Trips, t.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// The trip goes in last so a failed path write is retried by the
		// next snapshot of the trip.
		o.path, o.segments, err = p.ensurePath(ctx, raw.Sequence(), t)
		if err != nil {
			return p.failed(logger, o, err)
		}
		if err := p.repo.Put(ctx, t); err != nil {
			return p.failed(logger, o, err)
		}
		o.change = publisher.Created
	case err != nil:
		return p.failed(logger, o, err)
	default:
		merged := trip.Merge(current, t)
		if trip.DeepEqual(merged, current) {
			o.unchanged = true
			if p.metrics != nil {
				p.metrics.TripUnchanged()
			}
		} else {
			if err := p.repo.Put(ctx, merged); err != nil {
				return p.failed(logger, o, err)
			}
			o.change = publisher.Updated
		}
		t = merged
	}
	if o.change != "" && p.metrics != nil {
		p.metrics.TripWritten(string(o.change))
	}

	s := schedule.New(t, day, dep)
	o.schedule, err = p.putIfMissing(ctx, s)
	if err != nil {
		return p.failed(logger, o, err)
	}
	if o.schedule && p.metrics != nil {
		p.metrics.ScheduleWritten()
	}

	if o.change != "" && p.pub != nil {
		if err := p.pub.PublishTrip(publisher.NewTripMessage(batch, o.change, t, s.Departure.Time)); err != nil {
			logger.Error().Err(err).Msg("publish trip update")
		}
	}
	return o
}

func (p *Pipeline) failed(logger zerolog.Logger, o outcome, err error) outcome {
	logger.Error().Err(err).Msg("store trip")
	if p.metrics != nil {
		p.metrics.StoreError()
	}
	o.failed = true
	return o
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, trip.ErrMissingReferenceStop):
		return "missing_reference"
	case errors.Is(err, trip.ErrUnknownDirection):
		return "direction"
	case errors.Is(err, area.ErrUnknownClassification):
		return "classification"
	default:
		return "other"
	}
}

// checkStops warns about stops absent from a non-empty stop index.
func (p *Pipeline) checkStops(logger zerolog.Logger, t trip.Trip) int {
	if p.stops.Len() == 0 {
		return 0
	}
	missing := 0
	for _, id := range t.Times.Stops() {
		if _, ok := p.stops.Lookup(t.Type, id); ok {
			continue
		}
		missing++
		logger.Warn().Uint16("stop_id", id).Str("area", t.Type.String()).Msg("unknown stop")
		if p.metrics != nil {
			p.metrics.UnknownStop()
		}
	}
	return missing
}

// ensurePath stores the trip's path and any of its segments not yet stored.
// Segments are checked even when the path exists, filling gaps left by an
// earlier failed write.
func (p *Pipeline) ensurePath(ctx context.Context, seq []uint16, t trip.Trip) (bool, int, error) {
	rt := network.Bus
	if r, ok := p.routes[t.Route]; ok {
		if v, err := r.RoutingType(); err == nil {
			rt = v
		}
	}
	pth := path.New(seq, t.Type, rt)

	p.pathMu.Lock()
	defer p.pathMu.Unlock()
	created, err := p.putIfMissing(ctx, pth)
	if err != nil {
		return false, 0, err
	}
	if created && p.metrics != nil {
		p.metrics.PathWritten()
	}

	segments := 0
	for _, pair := range pth.Segments() {
		seg := path.NewSegment(pair.From, pair.To, t.Type, p.straightLine(t.Type, pair))
		ok, err := p.putIfMissing(ctx, seg)
		if err != nil {
			return created, segments, err
		}
		if ok {
			segments++
		}
	}
	return created, segments, nil
}

// straightLine is the placeholder geometry between two indexed stops, nil
// when either is unknown.
func (p *Pipeline) straightLine(c area.Classification, pair path.Pair) []geo.Coords {
	from, ok := p.stops.Lookup(c, pair.From)
	if !ok {
		return nil
	}
	to, ok := p.stops.Lookup(c, pair.To)
	if !ok {
		return nil
	}
	return []geo.Coords{from.Position, to.Position}
}

func (p *Pipeline) putIfMissing(ctx context.Context, doc store.Document) (bool, error) {
	_, err := p.repo.Get(ctx, doc.Collection(), doc.Key())
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}
	if err := p.repo.Put(ctx, doc); err != nil {
		return false, fmt.Errorf("put %s: %w", doc.Collection(), err)
	}
	return true, nil
}
