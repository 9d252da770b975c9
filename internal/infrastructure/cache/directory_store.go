// Package cache caches the user directory the identity matcher reads on every
// upload and rematch.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/salesplan/backend/internal/domain/crm"
)

// ErrCacheMiss is returned by a DirectoryStore holding no (fresh) snapshot
var ErrCacheMiss = errors.New("user directory not cached")

// DirectoryStore holds one snapshot of the user directory
type DirectoryStore interface {
	Get(ctx context.Context) ([]crm.User, error)
	Set(ctx context.Context, users []crm.User, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// InMemoryDirectoryStore keeps the snapshot in process memory. It is suitable
// for single-instance deployments and tests.
type InMemoryDirectoryStore struct {
	mu        sync.RWMutex
	users     []crm.User
	expiresAt time.Time
	cached    bool
	now       func() time.Time
}

// NewInMemoryDirectoryStore creates an empty in-memory store
func NewInMemoryDirectoryStore() *InMemoryDirectoryStore {
	return &InMemoryDirectoryStore{now: time.Now}
}

// Get returns a copy of the cached snapshot
func (s *InMemoryDirectoryStore) Get(ctx context.Context) ([]crm.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.cached || (!s.expiresAt.IsZero() && !s.now().Before(s.expiresAt)) {
		return nil, ErrCacheMiss
	}
	return append([]crm.User(nil), s.users...), nil
}

// Set replaces the snapshot; ttl <= 0 never expires
func (s *InMemoryDirectoryStore) Set(ctx context.Context, users []crm.User, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = append([]crm.User(nil), users...)
	s.cached = true
	s.expiresAt = time.Time{}
	if ttl > 0 {
		s.expiresAt = s.now().Add(ttl)
	}
	return nil
}

// Invalidate drops the snapshot
func (s *InMemoryDirectoryStore) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = nil
	s.cached = false
	return nil
}

var _ DirectoryStore = (*InMemoryDirectoryStore)(nil)
