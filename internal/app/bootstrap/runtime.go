package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Step store backends selectable through STEP_STORE.
const (
	StepStoreMemory   = "memory"
	StepStoreRedis    = "redis"
	StepStorePostgres = "postgres"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool opens a pgx pool when DATABASE_URL is set. A nil pool
// with nil error means Postgres is not configured.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("postgres connected")
	return pool, nil
}

// BuildStepStore selects the script step backend. Redis and Postgres must
// already be connected when selected.
func BuildStepStore(cfg *appconfig.Config, redisClient *redis.Client, pool *pgxpool.Pool, logger *logging.Logger) (conversation.StepStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.StepStore))
	switch backend {
	case "", StepStoreMemory:
		logger.Warn("using in-memory step store; script progress is lost on restart")
		return conversation.NewMemoryStepStore(), nil
	case StepStoreRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: step store %q requires redis", backend)
		}
		return conversation.NewRedisStepStore(redisClient), nil
	case StepStorePostgres:
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: step store %q requires DATABASE_URL", backend)
		}
		return conversation.NewPGStepStore(pool), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown step store %q", backend)
	}
}

// BuildDashboard wires the admin dashboard. Without Postgres it answers 503.
func BuildDashboard(pool *pgxpool.Pool, gatherer prometheus.Gatherer, logger *logging.Logger) *clinic.DashboardHandler {
	var stats clinic.BookingStats
	if pool != nil {
		stats = clinic.NewDashboardRepository(pool)
	}
	return clinic.NewDashboardHandler(stats, gatherer, logger)
}
