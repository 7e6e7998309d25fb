package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultKeyPrefix = "billing:"
	defaultViewTTL   = 10 * time.Minute
	scanBatchSize    = 100
)

// ViewCache stores JSON-encoded derived views. Keys are grouped by scope,
// which names one snapshot version, so a whole version can be dropped at
// once.
type ViewCache interface {
	Get(ctx context.Context, scope, view, key string, dest any) (bool, error)
	Set(ctx context.Context, scope, view, key string, value any) error
	Invalidate(ctx context.Context, scope string) error
	Close() error
}

// RedisViewCache implements ViewCache using Redis. A nil client turns every
// call into a miss.
type RedisViewCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// RedisViewCacheOption is a functional option for configuring the cache
type RedisViewCacheOption func(*RedisViewCache)

// WithKeyPrefix overrides the "billing:" key prefix
func WithKeyPrefix(prefix string) RedisViewCacheOption {
	return func(c *RedisViewCache) {
		c.keyPrefix = prefix
	}
}

// WithTTL sets how long a cached view lives
func WithTTL(ttl time.Duration) RedisViewCacheOption {
	return func(c *RedisViewCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheLogger sets the logger for the cache
func WithCacheLogger(logger *zap.Logger) RedisViewCacheOption {
	return func(c *RedisViewCache) {
		c.logger = logger
	}
}

// NewRedisViewCache creates a view cache over an existing Redis client
func NewRedisViewCache(client *redis.Client, opts ...RedisViewCacheOption) *RedisViewCache {
	c := &RedisViewCache{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       defaultViewTTL,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// key builds <prefix><scope>:<view>:<key>
func (c *RedisViewCache) key(scope, view, key string) string {
	return c.keyPrefix + scope + ":" + view + ":" + key
}

// Get decodes the cached view into dest and reports whether it was present
func (c *RedisViewCache) Get(ctx context.Context, scope, view, key string, dest any) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	data, err := c.client.Get(ctx, c.key(scope, view, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cached view: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached view: %w", err)
	}
	return true, nil
}

// Set stores value under the view key with the configured TTL
func (c *RedisViewCache) Set(ctx context.Context, scope, view, key string, value any) error {
	if c.client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode view: %w", err)
	}
	if err := c.client.Set(ctx, c.key(scope, view, key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache view: %w", err)
	}
	return nil
}

// Invalidate deletes every key of scope. SCAN keeps Redis responsive on
// large keyspaces.
func (c *RedisViewCache) Invalidate(ctx context.Context, scope string) error {
	if c.client == nil {
		return nil
	}
	pattern := c.keyPrefix + scope + ":*"
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cached views: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete cached views: %w", err)
			}
			deleted += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	c.logger.Debug("View cache scope invalidated", zap.String("scope", scope), zap.Int64("deleted", deleted))
	return nil
}

// Close closes the Redis client
func (c *RedisViewCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

var _ ViewCache = (*RedisViewCache)(nil)
