package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Rotator/internal/domain/models"
	applogger "Rotator/pkg/logger"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestBarManager(store *memBarStore, data *fakeMarketData, m *recordingMetrics, now time.Time) *BarManager {
	bm := NewBarManager(store, data, m, BarManagerConfig{WarmupMonths: 18, HistoryBars: 300, Location: time.UTC}, applogger.Nop())
	bm.now = func() time.Time { return now }
	return bm
}

func oneBar(symbol string, start time.Time) []models.DailyBar {
	return []models.DailyBar{{Symbol: symbol, Date: start, Close: 10}}
}

func TestEnsureBarsLoadedGroupsNewAndStale(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	store := newMemBarStore()
	require.NoError(t, store.UpsertBars(ctx, []models.DailyBar{
		{Symbol: "AAA", Date: day(2025, 1, 2), Close: 1},
		{Symbol: "BBB", Date: day(2024, 12, 30), Close: 1},
		{Symbol: "DDD", Date: day(2025, 1, 6), Close: 1},
	}))
	data := &fakeMarketData{bars: oneBar}
	bm := newTestBarManager(store, data, &recordingMetrics{}, now)

	require.NoError(t, bm.EnsureBarsLoaded(ctx, []string{"AAA", "BBB", "CCC", "DDD"}))

	require.Len(t, data.calls, 2)
	assert.Equal(t, []string{"CCC"}, data.calls[0].symbols)
	assert.Equal(t, day(2023, 7, 6), data.calls[0].start)
	assert.Equal(t, []string{"AAA", "BBB"}, data.calls[1].symbols)
	assert.Equal(t, day(2024, 12, 31), data.calls[1].start, "earliest next day across the stale group")

	latest, err := store.GetLatestDates(ctx, []string{"CCC"})
	require.NoError(t, err)
	assert.Equal(t, day(2023, 7, 6), latest["CCC"])
}

func TestEnsureBarsLoadedSkipsWhenCurrent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 6, 23, 0, 0, 0, time.UTC)
	store := newMemBarStore()
	require.NoError(t, store.UpsertBars(ctx, []models.DailyBar{
		{Symbol: "AAA", Date: day(2025, 1, 6), Close: 1},
	}))
	data := &fakeMarketData{bars: oneBar}
	bm := newTestBarManager(store, data, &recordingMetrics{}, now)

	require.NoError(t, bm.EnsureBarsLoaded(ctx, []string{"AAA"}))
	assert.Empty(t, data.calls)
}

func TestEnsureBarsLoadedUsesExchangeDay(t *testing.T) {
	ctx := context.Background()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 01:00 UTC on the 7th is still the 6th in New York.
	now := time.Date(2025, 1, 7, 1, 0, 0, 0, time.UTC)
	store := newMemBarStore()
	require.NoError(t, store.UpsertBars(ctx, []models.DailyBar{
		{Symbol: "AAA", Date: day(2025, 1, 6), Close: 1},
	}))
	data := &fakeMarketData{bars: oneBar}
	bm := NewBarManager(store, data, nil, BarManagerConfig{Location: ny}, applogger.Nop())
	bm.now = func() time.Time { return now }

	require.NoError(t, bm.EnsureBarsLoaded(ctx, []string{"AAA"}))
	assert.Empty(t, data.calls)
}

func TestEnsureBarsLoadedFetchErrorIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := newMemBarStore()
	data := &fakeMarketData{err: errors.New("upstream 503")}
	m := &recordingMetrics{}
	bm := newTestBarManager(store, data, m, time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC))

	require.NoError(t, bm.EnsureBarsLoaded(ctx, []string{"AAA"}))
	assert.Len(t, data.calls, 1)
	assert.Equal(t, 0, store.upserts)
	assert.Contains(t, m.errors, "bars_fetch")
}

func TestEnsureBarsLoadedStoreErrorPropagates(t *testing.T) {
	store := newMemBarStore()
	store.latestErr = errors.New("clickhouse down")
	bm := newTestBarManager(store, &fakeMarketData{}, &recordingMetrics{}, time.Now())

	err := bm.EnsureBarsLoaded(context.Background(), []string{"AAA"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clickhouse down")
}

func TestHistoryAndLatestClose(t *testing.T) {
	ctx := context.Background()
	store := newMemBarStore()
	require.NoError(t, store.UpsertBars(ctx, series("AAA", day(2025, 1, 10), 5, func(i int) float64 { return float64(i + 1) })))
	bm := newTestBarManager(store, &fakeMarketData{}, &recordingMetrics{}, time.Now())

	hist, err := bm.History(ctx, "AAA", 3)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, []float64{3, 4, 5}, models.Closes(hist))

	px, ok, err := bm.LatestClose(ctx, "AAA")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5.0, px)

	_, ok, err = bm.LatestClose(ctx, "ZZZ")
	require.NoError(t, err)
	assert.False(t, ok)
}
