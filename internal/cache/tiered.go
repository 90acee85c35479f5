package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orcastack/orca-monitor/internal/metrics"
)

// Tiered is a stale-while-revalidate cache in front of the inventory client.
// Reads check the in-process tier, then the shared tier, then the origin
// fetch function. A read past TTL but within the grace window returns the
// stale value immediately and refreshes in the background; callers never
// block on revalidation. Origin failures propagate and are not cached, so
// the next call retries.
type Tiered struct {
	logger *slog.Logger
	memory *Memory
	shared Provider
	grace  time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64
	stale  atomic.Uint64

	mu         sync.Mutex
	refreshing map[string]struct{}
	sharedKeys map[string]struct{}
}

// Stats exposes size and hit/miss counters for operational visibility.
type Stats struct {
	Size        int
	Hits        uint64
	Misses      uint64
	StaleServed uint64
}

// NewTiered builds a cache with an in-process tier and an optional shared
// provider. Pass NoopProvider{} (or nil) when no distributed tier exists.
func NewTiered(logger *slog.Logger, shared Provider, grace time.Duration) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	if shared == nil {
		shared = NoopProvider{}
	}
	if grace < 0 {
		grace = 0
	}
	return &Tiered{
		logger:     logger,
		memory:     NewMemory(),
		shared:     shared,
		grace:      grace,
		refreshing: make(map[string]struct{}),
		sharedKeys: make(map[string]struct{}),
	}
}

// GetOrFetch returns the cached value for key, fetching from the origin on a
// miss. Within TTL the fetch function is never invoked.
func GetOrFetch[T any](ctx context.Context, c *Tiered, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	now := time.Now()

	if entry, ok := c.memory.get(key); ok {
		if value, ok := entry.value.(T); ok {
			age := entry.age(now)
			if age <= entry.ttl {
				c.hits.Add(1)
				metrics.CountCacheResult("hit")
				return value, nil
			}
			if age <= entry.ttl+c.grace {
				c.stale.Add(1)
				metrics.CountCacheResult("stale")
				revalidate(ctx, c, key, ttl, fetch)
				return value, nil
			}
		}
	}

	if data, err := c.shared.Get(ctx, key); err == nil {
		var value T
		if err := json.Unmarshal(data, &value); err == nil {
			c.memory.set(key, value, ttl)
			c.hits.Add(1)
			metrics.CountCacheResult("hit")
			return value, nil
		}
		c.logger.Warn("shared cache entry undecodable, refetching", slog.String("key", key))
	}

	c.misses.Add(1)
	metrics.CountCacheResult("miss")
	value, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	c.store(ctx, key, value, ttl)
	return value, nil
}

// revalidate refreshes key in the background. At most one refresh per key is
// in flight at a time.
func revalidate[T any](ctx context.Context, c *Tiered, key string, ttl time.Duration, fetch func(context.Context) (T, error)) {
	c.mu.Lock()
	if _, busy := c.refreshing[key]; busy {
		c.mu.Unlock()
		return
	}
	c.refreshing[key] = struct{}{}
	c.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.refreshing, key)
			c.mu.Unlock()
		}()

		value, err := fetch(bg)
		if err != nil {
			// The stale entry stays in place; a later read retries.
			c.logger.Warn("background revalidation failed", slog.String("key", key), slog.Any("error", err))
			return
		}
		c.store(bg, key, value, ttl)
	}()
}

func (c *Tiered) store(ctx context.Context, key string, value any, ttl time.Duration) {
	c.memory.set(key, value, ttl)

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache value not serialisable for shared tier", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := c.shared.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn("shared cache write failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	c.mu.Lock()
	c.sharedKeys[key] = struct{}{}
	c.mu.Unlock()
}

// Clear purges both tiers.
func (c *Tiered) Clear(ctx context.Context) {
	c.memory.clear()
	c.mu.Lock()
	keys := make([]string, 0, len(c.sharedKeys))
	for key := range c.sharedKeys {
		keys = append(keys, key)
	}
	c.sharedKeys = make(map[string]struct{})
	c.mu.Unlock()

	for _, key := range keys {
		if err := c.shared.Del(ctx, key); err != nil {
			c.logger.Warn("shared cache delete failed", slog.String("key", key), slog.Any("error", err))
		}
	}
}

// InvalidatePrefix removes every key starting with prefix from both tiers
// and returns the number removed from the in-process tier.
func (c *Tiered) InvalidatePrefix(ctx context.Context, prefix string) int {
	removed := c.memory.deletePrefix(prefix)

	c.mu.Lock()
	var keys []string
	for key := range c.sharedKeys {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
			delete(c.sharedKeys, key)
		}
	}
	c.mu.Unlock()

	for _, key := range keys {
		if err := c.shared.Del(ctx, key); err != nil {
			c.logger.Warn("shared cache delete failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return removed
}

// GetStats returns current size and counters.
func (c *Tiered) GetStats() Stats {
	return Stats{
		Size:        c.memory.size(),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		StaleServed: c.stale.Load(),
	}
}
