package token

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/walletpay/internal/cache"
)

// Store persists access tokens until they expire. Writes are last-writer-wins.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, value != "", nil
}

func (s *RedisStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	return s.client.Set(ctx, key, token, ttl).Err()
}

type MemoryStore struct {
	items *cache.TTLCache[string, string]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: cache.NewTTLCache[string, string]()}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, ok := s.items.Get(key)
	return value, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	s.items.Set(key, token, ttl)
	return nil
}
