package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/garage/billing/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ViewCacheFactory creates view caches based on configuration
type ViewCacheFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	pingTimeout           time.Duration
}

// ViewCacheFactoryOption is a functional option for configuring the factory
type ViewCacheFactoryOption func(*ViewCacheFactory)

// WithLogger sets the logger for the factory and the caches it creates
func WithLogger(logger *zap.Logger) ViewCacheFactoryOption {
	return func(f *ViewCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory cache
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) ViewCacheFactoryOption {
	return func(f *ViewCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithPingTimeout bounds the Redis connectivity check
func WithPingTimeout(d time.Duration) ViewCacheFactoryOption {
	return func(f *ViewCacheFactory) {
		f.pingTimeout = d
	}
}

// NewViewCacheFactory creates a new factory
func NewViewCacheFactory(cfg config.RedisConfig, opts ...ViewCacheFactoryOption) *ViewCacheFactory {
	f := &ViewCacheFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
		pingTimeout:           5 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateRedisCache connects to Redis and returns a cache over it
func (f *ViewCacheFactory) CreateRedisCache(ctx context.Context) (*RedisViewCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, f.pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisViewCache(client,
		WithTTL(f.redisConfig.ViewTTL),
		WithCacheLogger(f.logger.Named("view_cache")),
	), nil
}

// CreateInMemoryCache creates a cache private to this process
func (f *ViewCacheFactory) CreateInMemoryCache() *InMemoryViewCache {
	return NewInMemoryViewCache(
		WithInMemoryTTL(f.redisConfig.ViewTTL),
		WithInMemoryLogger(f.logger.Named("view_cache")),
	)
}

// CreateCache returns a Redis cache when Redis is enabled and reachable,
// otherwise an in-memory one if fallback is allowed
func (f *ViewCacheFactory) CreateCache(ctx context.Context) (ViewCache, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory view cache")
		return f.CreateInMemoryCache(), nil
	}

	c, err := f.CreateRedisCache(ctx)
	if err == nil {
		f.logger.Info("Using Redis view cache", zap.String("addr", f.redisConfig.Addr()))
		return c, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for the view cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory view cache", zap.Error(err))
	return f.CreateInMemoryCache(), nil
}
