package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "acceptedOrder:"

// RedisSessionStore keeps the accepted order in Redis so the assignment
// survives agent restarts on the same device.
type RedisSessionStore struct {
	rdb *redis.Client
}

func NewRedisSessionStore(addr string) *RedisSessionStore {
	return &RedisSessionStore{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// NewRedisSessionStoreFromClient wraps an existing client (tests).
func NewRedisSessionStoreFromClient(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

func (s *RedisSessionStore) Get(ctx context.Context, driverID string) (string, error) {
	val, err := s.rdb.Get(ctx, sessionKeyPrefix+driverID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session get: %w", err)
	}
	return val, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, driverID, orderNumber string) error {
	// No TTL: the session only ends on delivery or staff cancellation.
	if err := s.rdb.Set(ctx, sessionKeyPrefix+driverID, orderNumber, 0).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, driverID string) error {
	if err := s.rdb.Del(ctx, sessionKeyPrefix+driverID).Err(); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Close() error {
	return s.rdb.Close()
}
