package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultCleanupInterval = 30 * time.Second

// InMemoryViewCache implements ViewCache inside the process. Values are kept
// JSON-encoded so callers get the same copy semantics as with Redis.
type InMemoryViewCache struct {
	mu      sync.RWMutex
	entries map[string]viewEntry
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped int32

	hits   int64
	misses int64
}

type viewEntry struct {
	data      []byte
	expiresAt time.Time
}

// InMemoryViewCacheOption is a functional option for configuring the cache
type InMemoryViewCacheOption func(*InMemoryViewCache)

// WithInMemoryTTL sets how long a cached view lives
func WithInMemoryTTL(ttl time.Duration) InMemoryViewCacheOption {
	return func(c *InMemoryViewCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithInMemoryLogger sets the logger for the cache
func WithInMemoryLogger(logger *zap.Logger) InMemoryViewCacheOption {
	return func(c *InMemoryViewCache) {
		c.logger = logger
	}
}

// withNow replaces the clock; tests only
func withNow(now func() time.Time) InMemoryViewCacheOption {
	return func(c *InMemoryViewCache) {
		c.now = now
	}
}

// NewInMemoryViewCache creates an in-memory view cache and starts its
// cleanup loop. Call Close to stop it.
func NewInMemoryViewCache(opts ...InMemoryViewCacheOption) *InMemoryViewCache {
	c := &InMemoryViewCache{
		entries: make(map[string]viewEntry),
		ttl:     defaultViewTTL,
		now:     time.Now,
		logger:  zap.NewNop(),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.cleanupExpired()
	return c
}

func (c *InMemoryViewCache) key(scope, view, key string) string {
	return scope + ":" + view + ":" + key
}

// Get decodes the cached view into dest and reports whether it was present
func (c *InMemoryViewCache) Get(_ context.Context, scope, view, key string, dest any) (bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[c.key(scope, view, key)]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		atomic.AddInt64(&c.misses, 1)
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached view: %w", err)
	}
	atomic.AddInt64(&c.hits, 1)
	return true, nil
}

// Set stores value under the view key
func (c *InMemoryViewCache) Set(_ context.Context, scope, view, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode view: %w", err)
	}
	c.mu.Lock()
	c.entries[c.key(scope, view, key)] = viewEntry{data: data, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Invalidate drops every entry of scope
func (c *InMemoryViewCache) Invalidate(_ context.Context, scope string) error {
	prefix := scope + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

// Stats returns the hit and miss counters
func (c *InMemoryViewCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Len returns the number of stored entries, expired ones included
func (c *InMemoryViewCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup loop. It is safe to call more than once.
func (c *InMemoryViewCache) Close() error {
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
	return nil
}

func (c *InMemoryViewCache) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *InMemoryViewCache) evictExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("Expired views evicted", zap.Int("count", removed))
	}
}

var _ ViewCache = (*InMemoryViewCache)(nil)
