package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-concierge/cmd/mainconfig"
	"github.com/wolfman30/clinic-concierge/internal/api/router"
	"github.com/wolfman30/clinic-concierge/internal/app/bootstrap"
	"github.com/wolfman30/clinic-concierge/internal/calendar"
	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	httpmiddleware "github.com/wolfman30/clinic-concierge/internal/http/middleware"
	"github.com/wolfman30/clinic-concierge/internal/media"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"step_store", cfg.StepStore,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	if cfg.StepStore == bootstrap.StepStoreRedis {
		redisClient = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
		if redisClient != nil {
			defer func() { _ = redisClient.Close() }()
		}
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	steps, err := bootstrap.BuildStepStore(cfg, redisClient, pool, logger)
	if err != nil {
		logger.Error("failed to build step store", "error", err)
		os.Exit(1)
	}

	google, err := bootstrap.BuildGoogleClients(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build google clients", "error", err)
		os.Exit(1)
	}

	s3Client, err := setupMediaArchive(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	reg, metricsHandler, convMetrics := setupMetrics()

	pipeline, err := bootstrap.BuildPipeline(bootstrap.PipelineDeps{
		Config:  cfg,
		Steps:   steps,
		Google:  google,
		Pool:    pool,
		S3:      s3Client,
		Metrics: convMetrics,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to build conversation pipeline", "error", err)
		os.Exit(1)
	}

	limiter := httpmiddleware.NewRateLimiter(1, 10)
	limiterDone := make(chan struct{})
	go limiter.Run(time.Minute, limiterDone)

	if strings.TrimSpace(cfg.AdminJWTSecret) == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes will reject every request")
	}
	r := router.New(&router.Config{
		Logger:          logger,
		Webhook:         pipeline.Webhook,
		Admin:           pipeline.Admin,
		Dashboard:       bootstrap.BuildDashboard(pool, reg, logger),
		GoogleConsent:   calendar.NewHandler(google.OAuth, logger),
		AdminAuthSecret: cfg.AdminJWTSecret,
		AdminLimiter:    limiter,
		MetricsHandler:  metricsHandler,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	close(limiterDone)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.FlushTimeout+30*time.Second)
	defer shutdownCancel()

	// Drain pending batches before the listener goes away.
	if err := pipeline.Debouncer.Shutdown(shutdownCtx); err != nil {
		logger.Error("debouncer did not drain", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (*prometheus.Registry, http.Handler, *metrics.ConversationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewConversationMetrics(reg)
}

// setupMediaArchive returns nil when MEDIA_BUCKET is unset.
func setupMediaArchive(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (media.S3API, error) {
	if strings.TrimSpace(cfg.MediaBucket) == "" {
		logger.Info("MEDIA_BUCKET not set; inbound audio will not be archived")
		return nil, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return mainconfig.NewS3Client(awsCfg, cfg), nil
}
