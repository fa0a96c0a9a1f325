package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Collector struct {
	reg *prometheus.Registry

	FeedMessages   prometheus.Counter
	FeedDecodeErrs prometheus.Counter

	TripsReceived  prometheus.Counter
	TripsRejected  *prometheus.CounterVec // reason label: missing_reference|direction|classification|other
	TripsWritten   *prometheus.CounterVec // change label: created|updated
	TripsUnchanged prometheus.Counter
	PathsWritten   prometheus.Counter
	Schedules      prometheus.Counter
	UnknownStops   prometheus.Counter
	StoreErrors    prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	DBPingFailures prometheus.Counter

	BatchDuration   prometheus.Histogram
	PublishDuration prometheus.Histogram

	Workers prometheus.Gauge
}

func NewCollector(workers int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FeedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_feed_messages_total",
			Help: "Feed messages received.",
		}),
		FeedDecodeErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_feed_decode_errors_total",
			Help: "Feed messages that could not be decoded.",
		}),
		TripsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_trips_received_total",
			Help: "Raw trips handed to the pipeline.",
		}),
		TripsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_trips_rejected_total",
			Help: "Raw trips rejected during normalization.",
		}, []string{"reason"}),
		TripsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_trips_written_total",
			Help: "Trips stored, by change kind.",
		}, []string{"change"}),
		TripsUnchanged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_trips_unchanged_total",
			Help: "Trip snapshots identical to the stored trip.",
		}),
		PathsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_paths_written_total",
			Help: "Paths stored.",
		}),
		Schedules: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_schedules_written_total",
			Help: "Schedules stored.",
		}),
		UnknownStops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_unknown_stops_total",
			Help: "Stop references missing from the stop index.",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_store_errors_total",
			Help: "Repository operations that failed.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		DBPingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_db_ping_failures_total",
			Help: "Failed periodic database pings.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_batch_duration_seconds",
			Help:    "Duration of one pipeline batch.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_workers",
			Help: "Configured pipeline workers.",
		}),
	}

	reg.MustRegister(
		c.FeedMessages, c.FeedDecodeErrs,
		c.TripsReceived, c.TripsRejected, c.TripsWritten, c.TripsUnchanged,
		c.PathsWritten, c.Schedules, c.UnknownStops, c.StoreErrors,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.DBPingFailures, c.BatchDuration, c.PublishDuration, c.Workers,
	)

	c.Workers.Set(float64(workers))

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}

// Pipeline hooks, see ingest.Metrics.

func (c *Collector) TripReceived()                { c.TripsReceived.Inc() }
func (c *Collector) TripRejected(reason string)   { c.TripsRejected.WithLabelValues(reason).Inc() }
func (c *Collector) TripWritten(change string)    { c.TripsWritten.WithLabelValues(change).Inc() }
func (c *Collector) TripUnchanged()               { c.TripsUnchanged.Inc() }
func (c *Collector) PathWritten()                 { c.PathsWritten.Inc() }
func (c *Collector) ScheduleWritten()             { c.Schedules.Inc() }
func (c *Collector) UnknownStop()                 { c.UnknownStops.Inc() }
func (c *Collector) StoreError()                  { c.StoreErrors.Inc() }
func (c *Collector) BatchObserve(d time.Duration) { c.BatchDuration.Observe(d.Seconds()) }

// Publisher hooks, see publisher.PublisherMetrics.

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(b bool) {
	if b {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
