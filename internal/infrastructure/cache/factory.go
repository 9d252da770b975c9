package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/salesplan/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// DirectoryStoreFactory creates the user directory store based on configuration
type DirectoryStoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// DirectoryStoreFactoryOption is a functional option for configuring the factory
type DirectoryStoreFactoryOption func(*DirectoryStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) DirectoryStoreFactoryOption {
	return func(f *DirectoryStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// the in-memory store. Default is true.
func WithInMemoryFallback(allow bool) DirectoryStoreFactoryOption {
	return func(f *DirectoryStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewDirectoryStoreFactory creates a new factory
func NewDirectoryStoreFactory(cfg config.RedisConfig, opts ...DirectoryStoreFactoryOption) *DirectoryStoreFactory {
	f := &DirectoryStoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns a Redis store when Redis is enabled and reachable, the
// in-memory store otherwise
func (f *DirectoryStoreFactory) CreateStore(ctx context.Context) (DirectoryStore, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("using in-memory user directory cache")
		return NewInMemoryDirectoryStore(), nil
	}

	store, err := NewRedisDirectoryStore(ctx, &redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("using Redis user directory cache", zap.String("addr", f.redisConfig.Addr()))
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for the user directory cache but unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory user directory cache", zap.Error(err))
	return NewInMemoryDirectoryStore(), nil
}
