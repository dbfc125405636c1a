package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"Rotator/internal/domain/models"
	"Rotator/internal/domain/repository"
	"Rotator/pkg/cache"
	applogger "Rotator/pkg/logger"
)

const stateCacheKey = "algorithm:state"

// CachedRunStore is a read-through cache in front of a RunStore for the
// algorithm state row. Writes go to the store first, then drop the cached
// copy since saves are partial merges.
type CachedRunStore struct {
	repository.RunStore
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedRunStore(next repository.RunStore, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedRunStore {
	return &CachedRunStore{RunStore: next, cache: c, ttl: ttl, l: l.Component("state-cache")}
}

func (s *CachedRunStore) LoadAlgorithmState(ctx context.Context) (*models.AlgorithmState, error) {
	var st models.AlgorithmState
	err := s.cache.Get(ctx, stateCacheKey, &st)
	if err == nil {
		return &st, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("state cache read failed", applogger.Error(err))
	}

	loaded, err := s.RunStore.LoadAlgorithmState(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, stateCacheKey, loaded, s.ttl); err != nil {
		s.l.Warn("state cache write failed", applogger.Error(err))
	}
	return loaded, nil
}

func (s *CachedRunStore) SaveAlgorithmState(ctx context.Context, patch models.StatePatch) error {
	if err := s.RunStore.SaveAlgorithmState(ctx, patch); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, stateCacheKey); err != nil {
		s.l.Warn("state cache invalidate failed", applogger.Error(err))
	}
	return nil
}

// CacheRunLock implements RunLock with a TTL'd key so a crashed holder
// cannot wedge the lock forever. Each acquire stores a fresh token and only
// that token can release the key.
type CacheRunLock struct {
	cache cache.Service
	key   string
	ttl   time.Duration

	mu    sync.Mutex
	token string
	newID func() string
}

func NewCacheRunLock(c cache.Service, key string, ttl time.Duration) *CacheRunLock {
	if key == "" {
		key = "algorithm:run-lock"
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CacheRunLock{cache: c, key: key, ttl: ttl, newID: uuid.NewString}
}

func (l *CacheRunLock) TryLock(ctx context.Context) (bool, error) {
	token := l.newID()
	ok, err := l.cache.TryLock(ctx, l.key, token, l.ttl)
	if err != nil || !ok {
		return false, err
	}
	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return true, nil
}

// Unlock releases the key if this lock still owns it. A lock that expired
// and was taken over reports cache.ErrLockNotHeld and leaves the new holder
// alone.
func (l *CacheRunLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()
	if token == "" {
		return cache.ErrLockNotHeld
	}
	return l.cache.Unlock(ctx, l.key, token)
}

var (
	_ repository.RunStore = (*CachedRunStore)(nil)
	_ repository.RunLock  = (*CacheRunLock)(nil)
)
