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

	"trackmirror/internal/api"
	"trackmirror/internal/config"
	"trackmirror/internal/database"
	"trackmirror/internal/domain"
	"trackmirror/internal/events"
	"trackmirror/internal/export"
	"trackmirror/internal/linear"
	"trackmirror/internal/logging"
	"trackmirror/internal/metrics"
	"trackmirror/internal/notify"
	"trackmirror/internal/repository"
	"trackmirror/internal/syncer"

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
		defer func() { _ = closer.Close() }()
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	statusRepo := buildStatusRepository(redisClient, &logger)

	client, err := linear.NewClient(cfg.Upstream.URL, cfg.Upstream.Token, cfg.Upstream.PageSize, logger)
	if err != nil {
		return fmt.Errorf("init upstream client: %w", err)
	}

	retry := syncer.NewRetryHandler(cfg.Sync.Retry, logger)
	limiter := syncer.NewRateLimiter(cfg.Sync.RateLimit, client, logger)
	guarded := syncer.NewGuardedClient(client, retry, limiter)
	transformer := syncer.NewTransformer(guarded, cfg.Sync.Concurrency, logger)

	bus := events.NewEventBus()
	service := syncer.NewService(guarded, transformer, db, db, statusRepo, bus, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := service.Initialize(ctx); err != nil {
		return fmt.Errorf("init sync service: %w", err)
	}

	alerter, err := notify.NewAlerter(cfg.Alerts, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram alerts init failed, continuing without alerts")
	}
	alerter.Attach(bus)

	exporter := export.NewExporter(cfg.Exports, db, db, logger)
	httpServer := api.NewHTTPServer(cfg.API, service, db, exporter, logger)

	scheduler := syncer.NewScheduler(cfg.Sync, syncer.NewCronRunner(), service, logger)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	startMetrics(ctx, cfg, &logger)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.Port).Str("schedule", cfg.Sync.Schedule).Msg("server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scheduler.Stop()
	_ = httpServer.Shutdown(shutdownCtx)
	service.Wait()

	logger.Info().Msg("server stopped")
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
	logger := baseLogger.With().Str("component", "server-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// buildStatusRepository wires the status store: Redis-backed with an
// in-memory failover when Redis is configured, plain memory otherwise.
func buildStatusRepository(redisClient *redis.Client, logger *zerolog.Logger) domain.StatusRepository {
	memory := repository.NewMemoryStatusRepository()
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisStatusRepository(redisClient, 24*time.Hour)
	return repository.NewFailoverStatusRepository(primary, memory, logger)
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
