package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"PortfolioAnalytics/internal/core"
	"PortfolioAnalytics/internal/ingestion"
	"PortfolioAnalytics/internal/observability"
	"PortfolioAnalytics/internal/persistence"
	"PortfolioAnalytics/internal/pricing"
	"PortfolioAnalytics/internal/query"
	"PortfolioAnalytics/internal/risk"
	"PortfolioAnalytics/internal/server"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type portfolioStore interface {
	query.BalanceReader
	query.TradeReader
}

func main() {
	dotenvErr := godotenv.Load()

	logger := observability.NewLogger("portfolio-analytics")
	if dotenvErr != nil && !errors.Is(dotenvErr, fs.ErrNotExist) {
		logger.Warn().Err(dotenvErr).Msg("ignoring .env")
	}
	logger.Info().Msg("portfolio analytics starting")

	cfg := DefaultConfig()

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability ---
	metrics := observability.NewMetrics(nil)
	healthChecker := observability.NewHealthChecker()

	// --- Portfolio store and quote source ---
	var (
		store    portfolioStore
		source   pricing.Source
		fixedNow *time.Time
	)
	if cfg.SnapshotFile != "" {
		p, err := persistence.LoadSnapshotFile(cfg.SnapshotFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", cfg.SnapshotFile).Msg("load snapshot")
		}
		mem := persistence.NewMemoryStore()
		mem.PutPortfolio(p)
		store = mem
		source = pricing.NewStaticSource(p.Prices)
		fixedNow = p.AsOf
		logger.Info().Str("file", cfg.SnapshotFile).Str("user_id", p.UserID.String()).Msg("serving snapshot file")
	} else {
		db, err := persistence.OpenPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer db.Close()
		logger.Info().Msg("Postgres connected")

		if cfg.AutoMigrate {
			n, err := persistence.NewMigrator(db, cfg.MigrationsDir, logger).Up(ctx)
			if err != nil {
				logger.Fatal().Err(err).Msg("run migrations")
			}
			logger.Info().Int("applied", n).Msg("migrations applied")
		}

		pg := persistence.NewPostgresStore(db)
		healthChecker.AddCheck("postgres", pg.Ping)
		store = pg
	}

	// --- NATS quote bucket (overrides snapshot prices) ---
	var (
		nc     *nats.Conn
		quotes jetstream.KeyValue
	)
	if cfg.NATSURL != "" {
		var (
			js  jetstream.JetStream
			err error
		)
		nc, js, err = ingestion.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()
		logger.Info().Msg("NATS connected")

		quotes, err = ingestion.OpenQuoteBucket(ctx, js, cfg.QuoteBucket)
		if err != nil {
			logger.Fatal().Err(err).Msg("open quote bucket")
		}
		source = ingestion.NewKVQuoteSource(quotes)
		healthChecker.AddCheck("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats %s", nc.Status())
			}
			return nil
		})
	}
	if source == nil {
		logger.Fatal().Msg("no quote source: set PA_NATS_URL or PA_SNAPSHOT_FILE")
	}

	// --- Price cache ---
	cache := pricing.NewCache(source, pricing.Config{
		TTL:          cfg.PriceTTL,
		StaleGrace:   cfg.PriceStaleGrace,
		FetchTimeout: cfg.PriceFetchTimeout,
	}, logger, metrics)

	sweeper, err := pricing.NewSweeper(cache, cfg.CacheSweepInterval, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("price sweeper")
	}
	sweeper.Start()
	defer sweeper.Stop()

	// --- Engine and query service ---
	vol := risk.NewStaticVolatility()
	if cfg.VolatilityFile != "" {
		if vol, err = risk.LoadVolatilityFile(cfg.VolatilityFile); err != nil {
			logger.Fatal().Err(err).Msg("load volatility table")
		}
	}
	engine := core.NewEngine(vol, logger, metrics)
	svc := query.NewService(store, store, cache, engine, logger, metrics)
	if fixedNow != nil {
		asOf := *fixedNow
		svc.SetClock(func() time.Time { return asOf })
	}

	srv := server.New(server.Config{
		GRPCAddr:       cfg.GRPCAddr,
		HTTPAddr:       cfg.HTTPAddr,
		RequestTimeout: cfg.RequestTimeout,
	}, server.ServerDeps{
		Service:       svc,
		Prices:        cache,
		HealthChecker: healthChecker,
		Log:           logger,
	})

	// --- Start goroutines ---
	errChan := make(chan error, 5)

	if nc != nil {
		listener := ingestion.NewInvalidationListener(nc, cfg.InvalidationSubj, cache, logger)
		if err := listener.Start(); err != nil {
			logger.Fatal().Err(err).Msg("invalidation listener")
		}
		defer listener.Stop()

		watcher := ingestion.NewQuoteWatcher(quotes, cache, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- fmt.Errorf("quote watcher: %w", err)
			}
		}()
	}

	var wg sync.WaitGroup
	run := func(fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errChan <- err
			}
		}()
	}
	run(srv.StartGRPC)
	run(srv.StartHTTP)
	run(func(ctx context.Context) error { return serveMetrics(ctx, cfg.MetricsAddr, logger) })

	srv.SetServing(true)
	logger.Info().
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("portfolio analytics ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown ---
	srv.SetServing(false)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("servers did not stop within 10s")
	}
	logger.Info().Msg("portfolio analytics shutdown complete")
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		metricsServer.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
