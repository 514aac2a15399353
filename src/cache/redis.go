package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"token-observer/src/logger"
	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// RedisCache
// -----------------------------------------------------------------------------

// RedisCache stores aggregation bundles in Redis. Entries are wrapped in an
// envelope carrying the store time so readers can tell how stale a degraded
// serve would be; Redis TTLs only say when an entry dies, not how old it is.
type RedisCache struct {
	Client *redis.Client
	Logger *logger.Logger
}

type redisEnvelope struct {
	StoredAt time.Time                    `json:"stored_at"`
	Response *models.MAggregationResponse `json:"response"`
}

// -----------------------------------------------------------------------------

// NewRedisCache connects to the configured Redis instance and verifies the
// connection with a ping.
func NewRedisCache(ctx context.Context, redisURL string, log *logger.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info("Connected to Redis at %s", opts.Addr)
	return &RedisCache{Client: client, Logger: log}, nil
}

// -----------------------------------------------------------------------------

func cacheKey(mint string) string {
	return "token:metrics:" + mint
}

// -----------------------------------------------------------------------------

func (c *RedisCache) Get(ctx context.Context, mint string) (*models.MAggregationResponse, time.Duration, bool) {
	raw, err := c.Client.Get(ctx, cacheKey(mint)).Bytes()
	if err == redis.Nil {
		return nil, 0, false
	}
	if err != nil {
		c.Logger.Warning("Redis get for %s: %v", mint, err)
		return nil, 0, false
	}

	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Response == nil {
		c.Logger.Warning("Corrupt cache entry for %s, dropping", mint)
		c.Client.Del(ctx, cacheKey(mint))
		return nil, 0, false
	}

	return env.Response, time.Since(env.StoredAt), true
}

// -----------------------------------------------------------------------------

func (c *RedisCache) Set(ctx context.Context, mint string, resp *models.MAggregationResponse, ttl time.Duration) error {
	raw, err := json.Marshal(redisEnvelope{StoredAt: time.Now(), Response: resp})
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, cacheKey(mint), raw, ttl).Err()
}

// -----------------------------------------------------------------------------

func (c *RedisCache) Invalidate(ctx context.Context, mint string) error {
	return c.Client.Del(ctx, cacheKey(mint)).Err()
}

// -----------------------------------------------------------------------------

func (c *RedisCache) Close() error {
	return c.Client.Close()
}
