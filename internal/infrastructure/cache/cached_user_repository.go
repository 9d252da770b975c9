package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/domain/crm"
	"go.uber.org/zap"
)

// DefaultDirectoryTTL bounds how stale a cached directory may get
const DefaultDirectoryTTL = 5 * time.Minute

// CachedUserRepository serves the user directory from a DirectoryStore and
// reloads it from the wrapped repository on a miss. Cache failures degrade to
// direct reads and are never returned to the caller.
type CachedUserRepository struct {
	next   crm.UserRepository
	store  DirectoryStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedUserRepository wraps next; ttl <= 0 uses DefaultDirectoryTTL
func NewCachedUserRepository(next crm.UserRepository, store DirectoryStore, ttl time.Duration, logger *zap.Logger) *CachedUserRepository {
	if ttl <= 0 {
		ttl = DefaultDirectoryTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedUserRepository{next: next, store: store, ttl: ttl, logger: logger}
}

// FindAll returns the cached directory, loading it on a miss
func (r *CachedUserRepository) FindAll(ctx context.Context) ([]crm.User, error) {
	users, err := r.store.Get(ctx)
	if err == nil {
		return users, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("user directory cache read failed", zap.Error(err))
	}

	users, err = r.next.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.store.Set(ctx, users, r.ttl); err != nil {
		r.logger.Warn("user directory cache write failed", zap.Error(err))
	}
	return users, nil
}

// FindByID looks the user up in the cached directory. A user missing from
// the snapshot is looked up in the wrapped repository, since it may have been
// created after the snapshot was taken.
func (r *CachedUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*crm.User, error) {
	users, cacheErr := r.store.Get(ctx)
	if cacheErr == nil {
		for i := range users {
			if users[i].ID == id {
				return &users[i], nil
			}
		}
	}

	user, err := r.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cacheErr == nil {
		// the snapshot predates this user
		if err := r.store.Invalidate(ctx); err != nil {
			r.logger.Warn("user directory cache invalidation failed", zap.Error(err))
		}
	}
	return user, nil
}

// Invalidate drops the cached directory
func (r *CachedUserRepository) Invalidate(ctx context.Context) error {
	return r.store.Invalidate(ctx)
}

var _ crm.UserRepository = (*CachedUserRepository)(nil)
