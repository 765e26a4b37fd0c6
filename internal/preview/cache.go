package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/bunchhieng/saveit/internal/config"
)

const cacheKeyPrefix = "saveit:preview:"

// RedisCache keeps previews in Redis with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

// NewRedisCache connects to cfg.RedisAddr and verifies the connection.
func NewRedisCache(cfg config.CacheConfig, logger logrus.FieldLogger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	log := logger.WithField("component", "preview_cache")
	log.WithField("addr", cfg.RedisAddr).Debug("redis preview cache connected")

	return &RedisCache{client: client, ttl: cfg.TTL, log: log}, nil
}

// Get returns the cached preview for u. A miss is (Preview{}, false, nil).
func (c *RedisCache) Get(ctx context.Context, u string) (Preview, bool, error) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+u).Bytes()
	if errors.Is(err, redis.Nil) {
		return Preview{}, false, nil
	}
	if err != nil {
		return Preview{}, false, fmt.Errorf("get cached preview: %w", err)
	}

	var p Preview
	if err := json.Unmarshal(data, &p); err != nil {
		return Preview{}, false, fmt.Errorf("decode cached preview: %w", err)
	}
	return p, true, nil
}

// Set stores p under u.
func (c *RedisCache) Set(ctx context.Context, u string, p Preview) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+u, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache preview: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
