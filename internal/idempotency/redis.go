package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cimillas/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "storefront:idempotency:orders:"
	pending   = "pending"
)

// RedisStore remembers which order an Idempotency-Key produced. A key is
// "pending" while its first request is in flight.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Begin claims key. It returns started=true when the caller should process
// the request, or the order id recorded by an earlier request with the same
// key. A key whose first request is still running yields
// ErrIdempotencyInProgress.
func (s *RedisStore) Begin(ctx context.Context, key string) (orderID int64, started bool, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, keyPrefix+key, pending, s.ttl).Result()
		if err != nil {
			return 0, false, fmt.Errorf("claim idempotency key: %w", err)
		}
		if ok {
			return 0, true, nil
		}

		val, err := s.client.Get(ctx, keyPrefix+key).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("read idempotency key: %w", err)
		}
		if val == pending {
			return 0, false, domain.NewError(domain.ErrIdempotencyInProgress, "", map[string]any{"idempotency_key": key})
		}
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("corrupt idempotency value %q: %w", val, err)
		}
		return id, false, nil
	}
	return 0, false, domain.NewError(domain.ErrIdempotencyInProgress, "", map[string]any{"idempotency_key": key})
}

func (s *RedisStore) Complete(ctx context.Context, key string, orderID int64) error {
	if err := s.client.Set(ctx, keyPrefix+key, strconv.FormatInt(orderID, 10), s.ttl).Err(); err != nil {
		return fmt.Errorf("store idempotency result: %w", err)
	}
	return nil
}

// Release forgets key so that a failed request can be retried with it.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
