//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/salesplan/backend/internal/domain/crm"
)

func newRedisStore(t *testing.T) *RedisDirectoryStore {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	store, err := NewRedisDirectoryStore(ctx, &redis.Options{Addr: endpoint})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisDirectoryStore(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, store.Set(ctx, []crm.User{anna, hans}, time.Minute))
	users, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []crm.User{anna, hans}, users)

	ttl, err := store.client.TTL(ctx, store.key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Invalidate(ctx))
	_, err = store.Get(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisDirectoryStore_SharedBetweenRepositories(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	first := new(mockUserRepository)
	first.On("FindAll", ctx).Return([]crm.User{anna}, nil).Once()
	_, err := NewCachedUserRepository(first, store, time.Minute, nil).FindAll(ctx)
	require.NoError(t, err)

	second := new(mockUserRepository)
	users, err := NewCachedUserRepository(second, store, time.Minute, nil).FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []crm.User{anna}, users)
	second.AssertNotCalled(t, "FindAll", ctx)
}
