package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagemirror/internal/api"
	"pagemirror/internal/config"
	"pagemirror/internal/database"
	"pagemirror/internal/events"
	"pagemirror/internal/logging"
	"pagemirror/internal/metrics"
	"pagemirror/internal/repository"
	"pagemirror/internal/source"
	"pagemirror/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	pageCache := buildPageCache(cfg, redisClient, &logger)
	sourceClient := source.NewClient(cfg.Source, &logger)

	bus := events.NewEventBus()
	subscribePageEvents(bus, db, pageCache, &logger)

	syncer := worker.NewSyncer(
		db, db, sourceClient, pageCache, redisClient, bus,
		worker.RetryPolicyFromConfig(cfg.Sync), cfg.Sync.MaxAttempts, &logger,
	)

	httpServer := api.NewHTTPServer(cfg.API, cfg.Exports, syncer, db, pageCache, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// buildPageCache fronts page reads with redis when available and falls back to
// the in-process cache when it is not.
func buildPageCache(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) *repository.FailoverPageCache {
	ttl := time.Duration(cfg.Redis.CacheTTL) * time.Second
	primary := repository.NewRedisPageCache(redisClient, ttl)
	fallback := repository.NewMemoryPageCache(ttl)
	return repository.NewFailoverPageCache(primary, fallback, logger)
}

// subscribePageEvents warms the page cache after every successful sync so the
// first public read does not pay the store round trip.
func subscribePageEvents(bus *events.EventBus, db *database.DB, cache *repository.FailoverPageCache, logger *zerolog.Logger) {
	bus.Subscribe(events.EventPageSynced, func(ev *events.Event) error {
		payload, err := events.DecodePagePayload(ev)
		if err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		if payload.Slug == "" {
			return nil
		}

		page, err := db.GetPageBySlug(context.Background(), payload.Slug)
		if err != nil {
			logger.Warn().Err(err).Str("slug", payload.Slug).Msg("event bus: load page")
			return nil
		}

		if err := cache.SetPage(context.Background(), page); err != nil {
			logger.Warn().Err(err).Str("slug", payload.Slug).Msg("event bus: warm cache")
		}
		return nil
	})
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
