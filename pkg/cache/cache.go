package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss   = errors.New("cache: key not found")
	ErrLockNotHeld = errors.New("cache: lock not held by this token")
)

// Service is the subset of key/value operations the engine relies on:
// JSON value caching plus a best-effort distributed lock.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	// TryLock stores token under key unless the key is already held.
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Unlock deletes key only while it still holds token, otherwise it
	// returns ErrLockNotHeld.
	Unlock(ctx context.Context, key, token string) error
	Close() error
}
