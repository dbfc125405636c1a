package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Rotator/internal/domain/models"
	domrepo "Rotator/internal/domain/repository"
	"Rotator/internal/services/analytics"
	"Rotator/internal/services/portfolio"
	applogger "Rotator/pkg/logger"
)

type pipeline struct {
	store   *memBarStore
	data    *fakeMarketData
	broker  *fakeBroker
	runs    *fakeRunStore
	pub     *fakePublisher
	metrics *recordingMetrics
	orch    *RebalanceOrchestrator
}

var testToday = day(2025, 1, 6)

func rising(base, rate float64) func(int) float64 {
	return func(i int) float64 { return base * math.Pow(1+rate, float64(i)) }
}

func flat(v float64) func(int) float64 {
	return func(int) float64 { return v }
}

// newPipeline seeds 250 current bars for AAA, UUP, BIL and the SPY
// benchmark. bullish picks the benchmark direction.
func newPipeline(t *testing.T, bullish bool, universe ...string) *pipeline {
	t.Helper()
	ctx := context.Background()
	store := newMemBarStore()
	spy := rising(400, 0.001)
	if !bullish {
		spy = rising(400, -0.001)
	}
	for sym, f := range map[string]func(int) float64{
		"SPY": spy,
		"AAA": rising(100, 0.002),
		"UUP": flat(25),
		"BIL": flat(91.5),
	} {
		require.NoError(t, store.UpsertBars(ctx, series(sym, testToday, 250, f)))
	}
	if len(universe) == 0 {
		universe = []string{"AAA", "UUP", "BIL"}
	}

	p := &pipeline{
		store:   store,
		data:    &fakeMarketData{},
		broker:  &fakeBroker{account: &models.Account{Equity: 100000}},
		runs:    &fakeRunStore{},
		pub:     &fakePublisher{},
		metrics: &recordingMetrics{},
	}
	bm := newTestBarManager(store, p.data, p.metrics, testToday.Add(16*time.Hour))
	p.orch = NewRebalanceOrchestrator(bm, p.broker, p.runs, p.pub, p.metrics, OrchestratorConfig{
		Universe:    universe,
		Benchmark:   "SPY",
		HistoryBars: 300,
		Periods:     analytics.DefaultPeriods(),
		Strategy:    portfolio.DefaultConfig(),
	}, applogger.Nop())
	p.orch.newID = func() string { return "run-1" }
	return p
}

func targetFor(t *testing.T, targets []models.TargetPosition, symbol string) models.TargetPosition {
	t.Helper()
	for _, tp := range targets {
		if tp.Symbol == symbol {
			return tp
		}
	}
	t.Fatalf("no target for %s in %+v", symbol, targets)
	return models.TargetPosition{}
}

func TestRebalanceManualExecutesOrders(t *testing.T) {
	p := newPipeline(t, true)
	p.broker.positions = []models.Position{
		{Symbol: "XYZ", Qty: 10, MarketValue: 500},
		{Symbol: "AAA", Qty: 5, MarketValue: 800},
	}

	res := p.orch.Execute(context.Background(), models.TriggerManual)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "run-1", res.RunID)
	assert.True(t, res.Regime.IsBullish)
	assert.Equal(t, 100000.0, res.AccountEquity)
	assert.False(t, res.FinishedAt.IsZero())

	require.NotEmpty(t, res.Scores)
	assert.Equal(t, "AAA", res.Scores[0].Symbol)
	for _, s := range res.Scores {
		assert.NotEqual(t, "BIL", s.Symbol)
	}

	aaa := targetFor(t, res.Targets, "AAA")
	bil := targetFor(t, res.Targets, "BIL")
	require.Greater(t, aaa.Shares, int64(5))
	assert.Equal(t, "BIL", res.Targets[len(res.Targets)-1].Symbol, "residual goes last")

	require.Len(t, res.OrdersPlaced, 3)
	assert.Equal(t, models.OrderRecord{Symbol: "XYZ", Side: models.SideSell, Quantity: 10, OrderType: "market", Status: models.OrderStatusClosed}, res.OrdersPlaced[0])
	assert.Equal(t, "AAA", res.OrdersPlaced[1].Symbol)
	assert.Equal(t, models.SideBuy, res.OrdersPlaced[1].Side)
	assert.Equal(t, float64(aaa.Shares-5), res.OrdersPlaced[1].Quantity)
	assert.Equal(t, "BIL", res.OrdersPlaced[2].Symbol)
	assert.Equal(t, float64(bil.Shares), res.OrdersPlaced[2].Quantity)
	assert.Equal(t, []string{"XYZ"}, p.broker.closed)

	require.Len(t, p.runs.logs, 1)
	assert.True(t, p.runs.logs[0].Success)
	patches := p.runs.savedPatches()
	require.Len(t, patches, 1)
	require.NotNil(t, patches[0].LastRebalance)
	assert.Equal(t, res.Timestamp, *patches[0].LastRebalance)
	assert.Equal(t, res.Targets, patches[0].CurrentTargets)
	assert.Equal(t, []string{"run-1"}, p.pub.published)
}

func TestRebalanceBrokerRejectionsDoNotAbort(t *testing.T) {
	p := newPipeline(t, true)
	p.broker.positions = []models.Position{
		{Symbol: "XYZ", Qty: 10, MarketValue: 500},
		{Symbol: "QQQ", Qty: 2, MarketValue: 900},
	}
	p.broker.closeErr = map[string]error{"XYZ": &domrepo.BrokerError{StatusCode: 403, Message: "forbidden"}}
	p.broker.orderErr = map[string]error{"AAA": &domrepo.BrokerError{StatusCode: 422, Message: "insufficient buying power"}}

	res := p.orch.Execute(context.Background(), models.TriggerManual)

	require.True(t, res.Success)
	require.Len(t, res.OrdersPlaced, 4)
	assert.Equal(t, "XYZ", res.OrdersPlaced[0].Symbol)
	assert.Equal(t, "error: 403", res.OrdersPlaced[0].Status)
	assert.Equal(t, 10.0, res.OrdersPlaced[0].Quantity)
	assert.Equal(t, "QQQ", res.OrdersPlaced[1].Symbol)
	assert.Equal(t, models.OrderStatusClosed, res.OrdersPlaced[1].Status)
	assert.Equal(t, "AAA", res.OrdersPlaced[2].Symbol)
	assert.Equal(t, "error: 422", res.OrdersPlaced[2].Status)
	assert.Equal(t, "BIL", res.OrdersPlaced[3].Symbol)
	assert.Equal(t, "accepted", res.OrdersPlaced[3].Status)
}

func TestRebalanceSellsDownOverweightTarget(t *testing.T) {
	p := newPipeline(t, true)
	probe := p.orch.Execute(context.Background(), models.TriggerManual)
	aaa := targetFor(t, probe.Targets, "AAA")

	p.broker.submitted = nil
	p.broker.positions = []models.Position{{Symbol: "AAA", Qty: float64(aaa.Shares + 4), MarketValue: 2000}}
	res := p.orch.Execute(context.Background(), models.TriggerManual)

	require.True(t, res.Success)
	require.NotEmpty(t, res.OrdersPlaced)
	assert.Equal(t, models.OrderRecord{Symbol: "AAA", Side: models.SideSell, Quantity: 4, OrderType: "market", Status: "accepted", ClientOrderID: "cid-AAA"}, res.OrdersPlaced[0])
}

func TestRebalanceScheduledWithinDeadbandPlacesNoOrders(t *testing.T) {
	p := newPipeline(t, true)
	probe := p.orch.Execute(context.Background(), models.TriggerManual)
	require.True(t, probe.Success)

	p.broker.submitted = nil
	p.broker.positions = nil
	for _, tp := range probe.Targets {
		p.broker.positions = append(p.broker.positions, models.Position{
			Symbol:      tp.Symbol,
			Qty:         float64(tp.Shares),
			MarketValue: tp.Weight*probe.AccountEquity + 100,
		})
	}

	res := p.orch.Execute(context.Background(), models.TriggerScheduled)

	require.True(t, res.Success)
	assert.NotNil(t, res.OrdersPlaced)
	assert.Empty(t, res.OrdersPlaced)
	assert.Empty(t, p.broker.submitted)
	assert.Contains(t, p.metrics.skips, "within_deadband")
	assert.Len(t, p.runs.logs, 2)
	assert.Len(t, p.runs.savedPatches(), 2, "skipped runs still refresh the state row")
}

func TestRebalanceScheduledNonPositiveEquityNeverTrades(t *testing.T) {
	p := newPipeline(t, true)
	p.broker.account = &models.Account{Equity: 0}
	p.broker.positions = []models.Position{{Symbol: "XYZ", Qty: 1, MarketValue: 10}}

	res := p.orch.Execute(context.Background(), models.TriggerScheduled)

	require.True(t, res.Success)
	assert.Empty(t, res.OrdersPlaced)
	assert.Empty(t, p.broker.closed)
}

func TestRebalanceBearishFallsBackToSafeAsset(t *testing.T) {
	p := newPipeline(t, false)

	res := p.orch.Execute(context.Background(), models.TriggerManual)

	require.True(t, res.Success)
	assert.False(t, res.Regime.IsBullish)
	require.Len(t, res.Targets, 1)
	assert.Equal(t, "BIL", res.Targets[0].Symbol)
	assert.Equal(t, 1.0, res.Targets[0].Weight)
	assert.Equal(t, int64(math.Floor(100000/91.5)), res.Targets[0].Shares)
	require.Len(t, res.OrdersPlaced, 1)
	assert.Equal(t, "BIL", res.OrdersPlaced[0].Symbol)
}

func TestRebalanceSkipsSymbolsWithoutHistory(t *testing.T) {
	p := newPipeline(t, true, "AAA", "NEW", "BIL")

	res := p.orch.Execute(context.Background(), models.TriggerManual)

	require.True(t, res.Success)
	require.Len(t, p.data.calls, 1)
	assert.Equal(t, []string{"NEW"}, p.data.calls[0].symbols)
	for _, s := range res.Scores {
		assert.NotEqual(t, "NEW", s.Symbol)
	}
}

func TestRebalanceFailureIsLoggedNotSaved(t *testing.T) {
	p := newPipeline(t, true)
	p.broker.accountErr = errors.New("connection reset")

	res := p.orch.Execute(context.Background(), models.TriggerScheduled)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "connection reset")
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, models.TriggerScheduled, res.TriggerType)
	assert.Equal(t, models.RegimeState{}, res.Regime)
	assert.NotNil(t, res.Scores)
	assert.Empty(t, res.Scores)
	assert.Empty(t, res.Targets)
	assert.Empty(t, res.OrdersPlaced)
	assert.Zero(t, res.AccountEquity)

	require.Len(t, p.runs.logs, 1)
	assert.False(t, p.runs.logs[0].Success)
	assert.Empty(t, p.runs.savedPatches())
	assert.Equal(t, []string{"run-1"}, p.pub.published)
	assert.Contains(t, p.metrics.errors, "pipeline")
}

func TestRebalancePersistenceFailureKeepsResult(t *testing.T) {
	p := newPipeline(t, true)
	p.runs.appendErr = errors.New("pg down")
	p.runs.saveErr = errors.New("pg down")

	res := p.orch.Execute(context.Background(), models.TriggerManual)

	assert.True(t, res.Success)
	assert.Empty(t, res.Error)
	assert.Contains(t, p.metrics.errors, "persist_log")
	assert.Contains(t, p.metrics.errors, "persist_state")
}

func TestRecordPersistsAndPublishesFailedResult(t *testing.T) {
	p := newPipeline(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p.orch.Record(ctx, &models.RebalanceResult{
		RunID:        "run-panic",
		TriggerType:  models.TriggerScheduled,
		OrdersPlaced: []models.OrderRecord{},
		Error:        "panic: boom",
	})

	require.Len(t, p.runs.logs, 1)
	assert.Equal(t, "run-panic", p.runs.logs[0].RunID)
	assert.Empty(t, p.runs.savedPatches(), "failed results never touch the state row")
	assert.Equal(t, []string{"run-panic"}, p.pub.published)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, "error: 404", errorStatus(&domrepo.BrokerError{StatusCode: 404, Message: "position not found"}))
	assert.Equal(t, "error: timeout", errorStatus(errors.New("timeout")))
}
