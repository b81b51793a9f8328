package sequence

import (
	"context"
	"errors"

	redisstore "github.com/vbouzoukos/vbmongoengine/pkg/store/redis"
)

// DefaultKeyPrefix namespaces counter keys in Redis.
const DefaultKeyPrefix = "vbengine:sequence:"

// Counter is the subset of the Redis adapter the store needs.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	SetInt(ctx context.Context, key string, value int64) error
	GetInt(ctx context.Context, key string) (int64, error)
}

var _ Counter = (*redisstore.RedisAdapter)(nil)

// RedisStore keeps counters as Redis integers. INCR is atomic on the server, so values stay
// unique across processes sharing the same Redis.
type RedisStore struct {
	counter Counter
	prefix  string
}

// NewRedisStore creates a store. An empty prefix means DefaultKeyPrefix.
func NewRedisStore(counter Counter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{counter: counter, prefix: prefix}
}

// Advance increments the counter and returns the incremented value. A missing key counts as 0,
// so a new counter issues 1 first.
func (s *RedisStore) Advance(ctx context.Context, name string) (int64, error) {
	return s.counter.Incr(ctx, s.prefix+name)
}

// Reset makes the next Advance return 1.
func (s *RedisStore) Reset(ctx context.Context, name string) error {
	return s.counter.SetInt(ctx, s.prefix+name, 0)
}

// Current returns the next value name would issue.
func (s *RedisStore) Current(ctx context.Context, name string) (int64, error) {
	n, err := s.counter.GetInt(ctx, s.prefix+name)
	if errors.Is(err, redisstore.ErrKeyNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}
