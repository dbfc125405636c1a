package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Rotator/internal/domain/models"
	"Rotator/internal/domain/repository"
	"Rotator/pkg/cache"
	applogger "Rotator/pkg/logger"
)

type countingRunStore struct {
	repository.RunStore
	state *models.AlgorithmState
	loads int
	saves []models.StatePatch
}

func (s *countingRunStore) LoadAlgorithmState(context.Context) (*models.AlgorithmState, error) {
	s.loads++
	if s.state == nil {
		return nil, repository.ErrNotFound
	}
	return s.state, nil
}

func (s *countingRunStore) SaveAlgorithmState(_ context.Context, patch models.StatePatch) error {
	s.saves = append(s.saves, patch)
	if s.state == nil {
		s.state = &models.AlgorithmState{}
	}
	if patch.LastRebalance != nil {
		s.state.LastRebalance = patch.LastRebalance
	}
	return nil
}

func TestCachedRunStoreReadThrough(t *testing.T) {
	ctx := context.Background()
	last := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	inner := &countingRunStore{state: &models.AlgorithmState{LastRebalance: &last}}
	store := NewCachedRunStore(inner, cache.NewMemoryCache(), time.Minute, applogger.Nop())

	for i := 0; i < 3; i++ {
		st, err := store.LoadAlgorithmState(ctx)
		require.NoError(t, err)
		require.NotNil(t, st.LastRebalance)
		assert.True(t, last.Equal(*st.LastRebalance))
	}
	assert.Equal(t, 1, inner.loads)

	next := last.Add(7 * 24 * time.Hour)
	require.NoError(t, store.SaveAlgorithmState(ctx, models.StatePatch{LastRebalance: &next}))

	st, err := store.LoadAlgorithmState(ctx)
	require.NoError(t, err)
	assert.True(t, next.Equal(*st.LastRebalance), "save invalidates the cached row")
	assert.Equal(t, 2, inner.loads)
}

func TestCachedRunStoreNotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingRunStore{}
	store := NewCachedRunStore(inner, cache.NewMemoryCache(), time.Minute, applogger.Nop())

	_, err := store.LoadAlgorithmState(ctx)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.LoadAlgorithmState(ctx)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 2, inner.loads)
}

func TestCacheRunLock(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	a := NewCacheRunLock(mc, "", time.Minute)
	b := NewCacheRunLock(mc, "", time.Minute)

	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Unlock(ctx))
	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheRunLockExpiredHolderCannotReleaseNewLock(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	a := NewCacheRunLock(mc, "", time.Minute)
	b := NewCacheRunLock(mc, "", time.Minute)
	c := NewCacheRunLock(mc, "", time.Minute)

	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// a's key expires while it is still running
	require.NoError(t, mc.Delete(ctx, "algorithm:run-lock"))
	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, a.Unlock(ctx), cache.ErrLockNotHeld)
	ok, err = c.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "b still holds the lock")

	require.NoError(t, b.Unlock(ctx))
	assert.ErrorIs(t, b.Unlock(ctx), cache.ErrLockNotHeld, "double release is reported")
}
