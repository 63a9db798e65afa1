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

	"pagemirror/internal/config"
	"pagemirror/internal/database"
	"pagemirror/internal/events"
	"pagemirror/internal/logging"
	"pagemirror/internal/metrics"
	"pagemirror/internal/models"
	"pagemirror/internal/repository"
	"pagemirror/internal/source"
	"pagemirror/internal/worker"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ttl := time.Duration(cfg.Redis.CacheTTL) * time.Second
	pageCache := repository.NewFailoverPageCache(
		repository.NewRedisPageCache(redisClient, ttl),
		repository.NewMemoryPageCache(ttl),
		&logger,
	)

	sourceClient := source.NewClient(cfg.Source, &logger)

	bus := events.NewEventBus()
	subscribeFailureLogging(bus, &logger)

	syncer := worker.NewSyncer(
		db, db, sourceClient, pageCache, redisClient, bus,
		worker.RetryPolicyFromConfig(cfg.Sync), cfg.Sync.MaxAttempts, &logger,
	)

	if err := enqueueSeedPages(ctx, syncer, &logger); err != nil {
		return err
	}

	startMetrics(ctx, cfg, &logger)

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}

	logger.Info().Str("worker_id", workerID).
		Dur("poll_interval", cfg.Sync.PollInterval()).
		Dur("sweep_interval", cfg.Sync.SweepInterval()).
		Msg("starting sync loop")

	syncer.Run(ctx, workerID, cfg.Sync.PollInterval(), cfg.Sync.SweepInterval())
	return nil
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
	logger := baseLogger.With().Str("component", "worker-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// enqueueSeedPages reads the operator-maintained page list and makes sure each
// page has a sync job. Pages already queued are absorbed by dedupe.
func enqueueSeedPages(ctx context.Context, syncer *worker.Syncer, logger *zerolog.Logger) error {
	seedsPath := os.Getenv("PAGES_PATH")
	if seedsPath == "" {
		seedsPath = "configs/pages.yaml"
	}

	data, err := os.ReadFile(seedsPath)
	if os.IsNotExist(err) {
		logger.Info().Str("pages_path", seedsPath).Msg("no seed pages file, skipping")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("pages_path", seedsPath).Msg("read seed pages")
		return err
	}

	var seeds struct {
		Pages []string `yaml:"pages"`
	}
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		logger.Error().Err(err).Str("pages_path", seedsPath).Msg("parse seed pages")
		return err
	}

	enqueued := 0
	for _, pageID := range seeds.Pages {
		if _, err := syncer.Enqueue(ctx, pageID, models.TriggerManual, ""); err != nil {
			logger.Warn().Err(err).Str("page_id", pageID).Msg("seed enqueue failed")
			continue
		}
		enqueued++
	}

	logger.Info().Int("enqueued", enqueued).Int("total", len(seeds.Pages)).Msg("seed pages enqueued")
	return nil
}

func subscribeFailureLogging(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventPageSyncFailed, func(ev *events.Event) error {
		payload, err := events.DecodePagePayload(ev)
		if err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		logger.Error().Int64("job_id", payload.JobID).Str("page_id", payload.PageID).
			Int("attempt", payload.Attempt).Str("error", payload.Error).
			Msg("page sync exhausted, operator attention needed")
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

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	// port offset keeps worker metrics from clashing with the API process
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port+1), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
}
