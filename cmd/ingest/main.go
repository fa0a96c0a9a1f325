package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"transit-core/internal/config"
	"transit-core/internal/ingest"
	"transit-core/internal/metrics"
	"transit-core/internal/publisher"
	"transit-core/internal/store"
)

var version = "dev"

func main() {
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "transit-ingest").
		Str("version", version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	logger = logger.Level(cfg.LogLevel)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open error")
	}
	defer pool.Close()
	if err := store.Ping(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("db ping error")
	}
	applied, err := store.Migrate(ctx, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate error")
	}
	logger.Info().Int("applied", applied).Msg("migrations up to date")

	var mcol *metrics.Collector
	var pubMetrics publisher.PublisherMetrics
	var pipeMetrics ingest.Metrics
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.Workers)
		pubMetrics, pipeMetrics = mcol, mcol
		srv := mcol.Serve(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	pub, err := publisher.NewNATSPublisher(publisher.Config{
		URL:         cfg.NATSURL,
		Subject:     cfg.UpdatesSubject,
		LogSubjects: cfg.LogNATSSubjects,
		Metrics:     pubMetrics,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("nats error")
	}
	defer pub.Close()

	pipe := ingest.New(ingest.Config{
		Repo:      store.NewPostgresRepository(pool),
		Publisher: pub,
		Metrics:   pipeMetrics,
		Logger:    logger,
		Workers:   cfg.Workers,
		Location:  cfg.Location,
	})

	// Messages are handled one at a time so batches never overlap.
	msgs := make(chan *nats.Msg, 64)
	for _, subject := range []string{cfg.NetworkSubject, cfg.FeedSubject} {
		sub, err := pub.Conn().ChanSubscribe(subject, msgs)
		if err != nil {
			logger.Fatal().Err(err).Str("subject", subject).Msg("subscribe error")
		}
		defer func() { _ = sub.Unsubscribe() }()
		logger.Info().Str("subject", subject).Msg("subscribed")
	}

	go watchDB(ctx, pool, cfg.PingInterval, mcol, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutdown complete")
			return
		case msg := <-msgs:
			if mcol != nil {
				mcol.FeedMessages.Inc()
			}
			handle(ctx, pipe, cfg, msg, mcol, logger)
		}
	}
}

func handle(ctx context.Context, pipe *ingest.Pipeline, cfg *config.Config, msg *nats.Msg, mcol *metrics.Collector, logger zerolog.Logger) {
	decodeErr := func(err error) {
		if mcol != nil {
			mcol.FeedDecodeErrs.Inc()
		}
		logger.Warn().Err(err).Str("subject", msg.Subject).Msg("feed decode error")
	}

	if msg.Subject == cfg.NetworkSubject {
		var n ingest.Network
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			decodeErr(err)
			return
		}
		if _, err := pipe.LoadNetwork(ctx, n); err != nil {
			logger.Error().Err(err).Msg("load network")
		}
		return
	}

	var b ingest.Batch
	if err := json.Unmarshal(msg.Data, &b); err != nil {
		decodeErr(err)
		return
	}
	day, err := b.ServiceDate(time.Now(), cfg.Location)
	if err != nil {
		decodeErr(err)
		return
	}
	if _, err := pipe.Process(ctx, day, b.Trips); err != nil {
		logger.Warn().Err(err).Msg("batch not completed")
	}
}

// watchDB pings the pool periodically so a lost database shows up in logs
// and metrics before the next batch fails.
func watchDB(ctx context.Context, pool *pgxpool.Pool, every time.Duration, mcol *metrics.Collector, logger zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := store.Ping(ctx, pool); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("db ping failed")
			if mcol != nil {
				mcol.DBPingFailures.Inc()
			}
		}
	}
}
