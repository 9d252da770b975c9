package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/salesplan/backend/internal/domain/crm"
)

const defaultDirectoryKey = "salesplan:user-directory:v1"

// RedisDirectoryStore shares the directory snapshot between instances.
// The snapshot is one JSON value under a single key.
type RedisDirectoryStore struct {
	client *redis.Client
	key    string
}

// NewRedisDirectoryStore connects to Redis and verifies the connection
func NewRedisDirectoryStore(ctx context.Context, opts *redis.Options) (*RedisDirectoryStore, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisDirectoryStoreWithClient(client, ""), nil
}

// NewRedisDirectoryStoreWithClient creates a store with an existing client
func NewRedisDirectoryStoreWithClient(client *redis.Client, key string) *RedisDirectoryStore {
	if key == "" {
		key = defaultDirectoryKey
	}
	return &RedisDirectoryStore{client: client, key: key}
}

// Get returns the cached snapshot or ErrCacheMiss
func (s *RedisDirectoryStore) Get(ctx context.Context) ([]crm.User, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user directory: %w", err)
	}

	var users []crm.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to decode user directory: %w", err)
	}
	return users, nil
}

// Set stores the snapshot; ttl <= 0 keeps it until invalidated
func (s *RedisDirectoryStore) Set(ctx context.Context, users []crm.User, ttl time.Duration) error {
	data, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("failed to encode user directory: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write user directory: %w", err)
	}
	return nil
}

// Invalidate deletes the snapshot
func (s *RedisDirectoryStore) Invalidate(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate user directory: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisDirectoryStore) Close() error {
	return s.client.Close()
}

var _ DirectoryStore = (*RedisDirectoryStore)(nil)
