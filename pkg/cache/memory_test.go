package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	require.NoError(t, mc.Set(ctx, "k", payload{Name: "SOXL", Value: 0.5}, time.Minute))

	var got payload
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, "SOXL", got.Name)
	assert.Equal(t, 0.5, got.Value)

	require.NoError(t, mc.Delete(ctx, "k"))
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	now := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", "v", time.Second))
	now = now.Add(2 * time.Second)

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	ok, err := mc.TryLock(ctx, "run", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "run", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "run", "a"))
	ok, err = mc.TryLock(ctx, "run", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheUnlockRequiresOwner(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	mc := NewMemoryCache()
	mc.now = func() time.Time { return now }

	ok, err := mc.TryLock(ctx, "run", "old", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// the old holder outlives its ttl and someone else takes the lock
	now = now.Add(2 * time.Minute)
	ok, err = mc.TryLock(ctx, "run", "new", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, mc.Unlock(ctx, "run", "old"), ErrLockNotHeld)
	ok, err = mc.TryLock(ctx, "run", "third", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "the new holder keeps the lock")

	require.NoError(t, mc.Unlock(ctx, "run", "new"))
}
