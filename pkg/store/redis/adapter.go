// Package redis connects to the Redis server that holds shared sequence counters.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vbouzoukos/vbmongoengine/pkg/observability/logger"
)

const (
	dialTimeout        = 5 * time.Second
	healthCheckTimeout = 2 * time.Second
)

// ErrKeyNotFound is returned when a counter key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// Config holds the Redis connection settings.
type Config struct {
	URL string
	// MaxConns caps the connection pool. Zero keeps the go-redis default.
	MaxConns         int
	OperationTimeout time.Duration
}

func (c Config) options() (*redis.Options, error) {
	if c.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.DialTimeout = dialTimeout
	if c.MaxConns > 0 {
		opts.PoolSize = c.MaxConns
	}
	if c.OperationTimeout > 0 {
		opts.ReadTimeout = c.OperationTimeout
		opts.WriteTimeout = c.OperationTimeout
	}
	return opts, nil
}

// RedisAdapter exposes integer counters stored as plain Redis strings.
type RedisAdapter struct {
	client *redis.Client
	logger logger.Logger
}

// NewRedisAdapter connects and pings the server within dialTimeout.
func NewRedisAdapter(cfg Config, log logger.Logger) (*RedisAdapter, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	if log == nil {
		log = logger.NewNop()
	}
	log = log.With("redis_addr", opts.Addr, "redis_db", opts.DB)
	log.Info("redis connected", "pool_size", opts.PoolSize)
	return &RedisAdapter{client: client, logger: log}, nil
}

// Client returns the underlying go-redis client.
func (a *RedisAdapter) Client() *redis.Client { return a.client }

func (a *RedisAdapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

// Incr atomically adds one to key and returns the new value. A missing key counts as 0.
func (a *RedisAdapter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := a.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return n, nil
}

// GetInt reads the counter at key. It returns ErrKeyNotFound when the key is missing.
func (a *RedisAdapter) GetInt(ctx context.Context, key string) (int64, error) {
	n, err := a.client.Get(ctx, key).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	case err != nil:
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return n, nil
}

// SetInt overwrites the counter at key without expiration.
func (a *RedisAdapter) SetInt(ctx context.Context, key string, value int64) error {
	if err := a.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (a *RedisAdapter) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := a.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete %d keys: %w", len(keys), err)
	}
	return nil
}

// HealthCheck pings the server within healthCheckTimeout.
func (a *RedisAdapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := a.Ping(ctx); err != nil {
		a.logger.Warn("redis health check failed", "error", err)
		return fmt.Errorf("redis health check: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (a *RedisAdapter) Close() error {
	if err := a.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	a.logger.Info("redis connection closed")
	return nil
}
