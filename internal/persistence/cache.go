package persistence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Cache is the read-cache front-end for the persistence adapter's GET
// paths (§2b, §6.1) — bar pages only; POST/PUT/DELETE never consult it.
// A small interface rather than *redis.Client directly so tests can
// substitute an in-memory double without a live redis instance, the
// same shape the teacher's pkg/cache.MemoryCache plays for its callers.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisCache wraps a go-redis client as a Cache.
type RedisCache struct {
	client *redis.Client
	logger *logrus.Entry
}

// RedisConfig mirrors internal/config.RedisConfig.
type RedisConfig struct {
	Addr string
	DB   int
}

// NewRedisCache connects to redis at cfg.Addr. The connection is lazy
// (go-redis dials on first use); callers that want to fail fast should
// Ping once after construction.
func NewRedisCache(cfg RedisConfig, logger *logrus.Entry) *RedisCache {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
	return &RedisCache{client: client, logger: logger.WithField("component", "persistence-cache")}
}

// Get reports (value, true, nil) on a hit and ("", false, nil) on a
// miss. A redis failure is logged and also reported as a miss with a nil
// error, since the cache is purely advisory.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache get failed")
		return "", false, nil
	}
	return val, true, nil
}

// Set stores value under key with ttl. A failure here is logged and
// swallowed — the cache is never a source of truth, so a write failure
// degrades to "always miss" rather than failing the caller's request.
func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache set failed")
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
