package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix is prepended to every vanity name stored in Redis.
const DefaultRedisKeyPrefix = "steamgate:vanity:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// KeyPrefix namespaces the cache keys (defaults to "steamgate:vanity:")
	KeyPrefix string

	// TTL is the time-to-live for each mapping (defaults to 24 hours)
	TTL time.Duration
}

// RedisCache implements IdentityCache using Redis for distributed storage.
// This is suitable for multi-instance deployments behind a load balancer.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a new Redis-based cache.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	slog.Info("redis identity cache connected", "prefix", prefix, "ttl", ttl)

	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (c *RedisCache) key(vanity string) string {
	return c.prefix + normalizeKey(vanity)
}

// Get retrieves the Steam ID for vanity from Redis.
func (c *RedisCache) Get(ctx context.Context, vanity string) (string, bool, error) {
	steamID, err := c.client.Get(ctx, c.key(vanity)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get identity from redis: %w", err)
	}
	return steamID, true, nil
}

// Set stores the mapping in Redis with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, vanity, steamID string) error {
	if err := c.client.Set(ctx, c.key(vanity), steamID, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set identity in redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
