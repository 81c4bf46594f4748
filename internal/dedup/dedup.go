package dedup

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "liquidity-alerts:cooldown:"

// Cooldown remembers recently delivered alert keys in Redis until their TTL lapses.
type Cooldown struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a Cooldown backed by Redis.
func New(redisURL, password string, ttl time.Duration) (*Cooldown, error) {
	if ttl <= 0 {
		return nil, errors.New("cooldown ttl must be positive")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Cooldown{rdb: rdb, ttl: ttl}, nil
}

// Close shuts down the Redis connection.
func (c *Cooldown) Close() error {
	return c.rdb.Close()
}

// Active reports whether key was marked within the TTL window.
func (c *Cooldown) Active(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records key as delivered for the TTL window.
func (c *Cooldown) Mark(ctx context.Context, key string) error {
	return c.rdb.Set(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), c.ttl).Err()
}
