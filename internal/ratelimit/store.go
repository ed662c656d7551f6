package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bizpulse/pkg/circuitbreaker"
)

// Store keeps presence-only markers with a TTL.
type Store interface {
	// SetNX writes key if absent and reports whether it was written.
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Count(ctx context.Context, prefix string) (int, error)
}

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return ok, nil
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis EXISTS failed: %w", err)
	}
	return n > 0, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Count(ctx context.Context, prefix string) (int, error) {
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	count := 0
	for iter.Next(ctx) {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}
	return count, nil
}

// CircuitBreakerStore stops hammering the store while it is failing.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store Store, cb *circuitbreaker.Wrapper) *CircuitBreakerStore {
	return &CircuitBreakerStore{store: store, cb: cb}
}

func (s *CircuitBreakerStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return circuitbreaker.Do(ctx, s.cb, func() (bool, error) {
		return s.store.SetNX(ctx, key, ttl)
	})
}

func (s *CircuitBreakerStore) Exists(ctx context.Context, key string) (bool, error) {
	return circuitbreaker.Do(ctx, s.cb, func() (bool, error) {
		return s.store.Exists(ctx, key)
	})
}

func (s *CircuitBreakerStore) Delete(ctx context.Context, key string) error {
	_, err := circuitbreaker.Do(ctx, s.cb, func() (struct{}, error) {
		return struct{}{}, s.store.Delete(ctx, key)
	})
	return err
}

func (s *CircuitBreakerStore) Count(ctx context.Context, prefix string) (int, error) {
	return circuitbreaker.Do(ctx, s.cb, func() (int, error) {
		return s.store.Count(ctx, prefix)
	})
}

func (s *CircuitBreakerStore) State() string {
	return s.cb.State()
}
