// Package cache provides the Redis caching layer for pricing data. Values
// are opaque byte payloads; callers own serialization. When Redis is down or
// caching is disabled every read is a miss and every write a no-op, so the
// service keeps answering from live sources.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lendpool/locator/internal/config"
	"github.com/lendpool/locator/internal/metrics"
)

// Cache is a namespaced Redis cache with per-prefix TTL policy
type Cache struct {
	client  *redis.Client
	prefix  string
	policy  Policy
	metrics *metrics.Registry
	log     zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	errors atomic.Int64
}

// Stats is a point-in-time snapshot of cache counters
type Stats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Sets     int64   `json:"sets"`
	Errors   int64   `json:"errors"`
	HitRate  float64 `json:"hit_rate"`
	Degraded bool    `json:"degraded"`
}

// New connects a Redis-backed cache. A disabled cache config returns a
// degraded instance that never errors and never stores.
func New(cfg config.RedisConfig, cacheCfg config.CacheConfig, m *metrics.Registry, log zerolog.Logger) *Cache {
	c := &Cache{
		prefix:  cfg.KeyPrefix,
		policy:  NewPolicy(cacheCfg.TTLSecs),
		metrics: m,
		log:     log.With().Str("component", "cache").Logger(),
	}
	if !cacheCfg.Enabled {
		c.log.Warn().Msg("caching disabled, all lookups will miss")
		return c
	}

	c.client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,

		DialTimeout:  time.Duration(cfg.DialTimeoutMS) * time.Millisecond,
		ReadTimeout:  time.Duration(cfg.OpTimeoutMS) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.OpTimeoutMS) * time.Millisecond,
	})
	return c
}

// NewWithClient wraps an existing Redis client, used by tests
func NewWithClient(client *redis.Client, prefix string, policy Policy, m *metrics.Registry, log zerolog.Logger) *Cache {
	return &Cache{
		client:  client,
		prefix:  prefix,
		policy:  policy,
		metrics: m,
		log:     log.With().Str("component", "cache").Logger(),
	}
}

func (c *Cache) key(k string) string {
	return c.prefix + ":" + k
}

// Get returns the payload for key, or a miss. Redis errors are misses so a
// cache outage degrades to pass-through instead of failing requests.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.client == nil {
		c.misses.Add(1)
		return nil, false
	}

	start := time.Now()
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	elapsed := time.Since(start)

	if err != nil {
		if err == redis.Nil {
			c.misses.Add(1)
			c.metrics.ObserveCacheGet(PrefixOf(key), false, elapsed)
			return nil, false
		}
		c.errors.Add(1)
		c.misses.Add(1)
		c.metrics.CacheErrors.WithLabelValues("get").Inc()
		c.log.Warn().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
		return nil, false
	}

	c.hits.Add(1)
	c.metrics.ObserveCacheGet(PrefixOf(key), true, elapsed)
	return val, true
}

// Set stores a payload under key for ttl. Failures are logged and counted,
// never returned: a write miss only costs a future cache hit.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c.client == nil || ttl <= 0 {
		return
	}

	start := time.Now()
	err := c.client.Set(ctx, c.key(key), value, ttl).Err()
	c.metrics.CacheLatency.WithLabelValues("set").Observe(time.Since(start).Seconds())

	if err != nil {
		c.errors.Add(1)
		c.metrics.CacheErrors.WithLabelValues("set").Inc()
		c.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
		return
	}
	c.sets.Add(1)
}

// SetDefault stores a payload using the TTL policy for the key's prefix
func (c *Cache) SetDefault(ctx context.Context, key string, value []byte) {
	c.Set(ctx, key, value, c.policy.For(key))
}

// TTLFor exposes the policy TTL for a key
func (c *Cache) TTLFor(key string) time.Duration {
	return c.policy.For(key)
}

// Delete removes a key
func (c *Cache) Delete(ctx context.Context, key string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		c.errors.Add(1)
		c.metrics.CacheErrors.WithLabelValues("del").Inc()
		c.log.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}

// Exists reports whether a key is present without fetching it
func (c *Cache) Exists(ctx context.Context, key string) bool {
	if c.client == nil {
		return false
	}
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		c.errors.Add(1)
		c.metrics.CacheErrors.WithLabelValues("exists").Inc()
		return false
	}
	return n > 0
}

// FlushPrefix removes every key under the given namespace prefix and returns
// how many were dropped. Used by admin invalidation, not the hot path.
func (c *Cache) FlushPrefix(ctx context.Context, prefix string) (int, error) {
	if c.client == nil {
		return 0, nil
	}

	var (
		deleted int
		batch   []string
	)
	iter := c.client.Scan(ctx, 0, c.key(prefix)+"*", 200).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 200 {
			n, err := c.client.Del(ctx, batch...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.errors.Add(1)
		return deleted, err
	}
	if len(batch) > 0 {
		n, err := c.client.Del(ctx, batch...).Result()
		if err != nil {
			return deleted, err
		}
		deleted += int(n)
	}
	return deleted, nil
}

// Healthy pings Redis. A degraded cache reports false without erroring.
func (c *Cache) Healthy(ctx context.Context) bool {
	if c.client == nil {
		return false
	}
	return c.client.Ping(ctx).Err() == nil
}

// Stats snapshots the cache counters
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	s := Stats{
		Hits:     hits,
		Misses:   misses,
		Sets:     c.sets.Load(),
		Errors:   c.errors.Load(),
		Degraded: c.client == nil,
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Close releases the Redis connection pool
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
