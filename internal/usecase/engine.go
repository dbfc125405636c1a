package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"Rotator/internal/domain/models"
	domrepo "Rotator/internal/domain/repository"
	applogger "Rotator/pkg/logger"
)

// Rebalancer runs one pipeline invocation. Record persists and publishes a
// result the pipeline did not finish itself.
type Rebalancer interface {
	Execute(ctx context.Context, trigger models.TriggerType) *models.RebalanceResult
	Record(ctx context.Context, res *models.RebalanceResult)
}

// BarWarmer preloads bar history.
type BarWarmer interface {
	EnsureBarsLoaded(ctx context.Context, symbols []string) error
}

type EngineConfig struct {
	Schedule      string
	Location      *time.Location
	Enabled       bool
	Symbols       []string
	WarmupTimeout time.Duration
	RunTimeout    time.Duration
	HistoryLimit  int
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Schedule:      "0 10 * * 1",
		Location:      time.UTC,
		Enabled:       true,
		WarmupTimeout: 5 * time.Minute,
		RunTimeout:    10 * time.Minute,
		HistoryLimit:  10,
	}
}

// Engine owns the run guard, the in-memory AlgorithmState and the weekly
// schedule. Scheduled and manual runs share one guard.
type Engine struct {
	rebalancer Rebalancer
	warmer     BarWarmer
	broker     domrepo.Broker
	runs       domrepo.RunStore
	lock       domrepo.RunLock
	metrics    domrepo.Metrics
	cfg        EngineConfig
	schedule   cron.Schedule
	l          *applogger.Logger
	now        func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	state   models.AlgorithmState

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine validates the cron expression. lock may be nil for single-process
// deployments.
func NewEngine(r Rebalancer, w BarWarmer, broker domrepo.Broker, runs domrepo.RunStore, lock domrepo.RunLock, m domrepo.Metrics, cfg EngineConfig, l *applogger.Logger) (*Engine, error) {
	def := DefaultEngineConfig()
	if cfg.Schedule == "" {
		cfg.Schedule = def.Schedule
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.WarmupTimeout <= 0 {
		cfg.WarmupTimeout = def.WarmupTimeout
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = def.RunTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
	}
	if m == nil {
		m = nopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		rebalancer: r,
		warmer:     w,
		broker:     broker,
		runs:       runs,
		lock:       lock,
		metrics:    m,
		cfg:        cfg,
		schedule:   sched,
		l:          l.Component("engine"),
		now:        time.Now,
		state:      defaultState(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func defaultState() models.AlgorithmState {
	return models.AlgorithmState{
		CurrentTargets: []models.TargetPosition{},
		LatestScores:   []models.ScoredAsset{},
	}
}

// LoadState replaces the in-memory state with the persisted one, or the
// zero state when nothing was saved. Scheduler flags are preserved.
func (e *Engine) LoadState(ctx context.Context) error {
	loaded, err := e.runs.LoadAlgorithmState(ctx)
	st := defaultState()
	switch {
	case err == nil:
		st = *loaded
	case errors.Is(err, domrepo.ErrNotFound):
		e.l.Info("no persisted state, starting fresh")
	}
	if st.CurrentTargets == nil {
		st.CurrentTargets = []models.TargetPosition{}
	}
	if st.LatestScores == nil {
		st.LatestScores = []models.ScoredAsset{}
	}

	e.mu.Lock()
	st.SchedulerActive = e.state.SchedulerActive
	st.IsRunning = e.running.Load()
	e.state = st
	e.mu.Unlock()
	if err != nil && !errors.Is(err, domrepo.ErrNotFound) {
		return err
	}
	return nil
}

// Start loads state, kicks off a background warmup and registers the
// weekly schedule. It does not block on the warmup.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.LoadState(ctx); err != nil {
		e.metrics.RecordError("load_state")
		e.l.Warn("load state failed, starting fresh", applogger.Error(err))
	}

	go e.warmup()

	if !e.cfg.Enabled {
		e.l.Info("scheduler disabled")
		return nil
	}

	e.cron = cron.New(cron.WithLocation(e.cfg.Location))
	job := func() {
		e.RunScheduled(e.ctx)
		e.updateNextScheduled(e.ctx)
	}
	if _, err := e.cron.AddFunc(e.cfg.Schedule, job); err != nil {
		return fmt.Errorf("register schedule: %w", err)
	}
	e.cron.Start()

	e.mu.Lock()
	e.state.SchedulerActive = true
	e.mu.Unlock()
	e.updateNextScheduled(ctx)

	e.l.Info("scheduler started",
		applogger.String("schedule", e.cfg.Schedule),
		applogger.String("timezone", e.cfg.Location.String()))
	return nil
}

func (e *Engine) warmup() {
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.WarmupTimeout)
	defer cancel()
	if err := e.Warmup(ctx); err != nil {
		e.metrics.RecordError("warmup")
		e.l.Error("bar warmup failed", applogger.Error(err))
		return
	}
	e.l.Info("bar warmup complete", applogger.Int("symbols", len(e.cfg.Symbols)))
}

// Warmup loads bars for the configured symbols.
func (e *Engine) Warmup(ctx context.Context) error {
	return e.warmer.EnsureBarsLoaded(ctx, e.cfg.Symbols)
}

// RunScheduled is the timer callback: skip when the market is closed or a
// run is already in flight, otherwise rebalance with the scheduled trigger.
func (e *Engine) RunScheduled(ctx context.Context) {
	e.l.Info("scheduled rebalance triggered")

	clock, err := e.broker.GetClock(ctx)
	if err != nil {
		e.metrics.RecordError("clock")
		e.l.Error("market clock unavailable, skipping", applogger.Error(err))
		return
	}
	if !clock.IsOpen {
		e.metrics.RecordSkip("market_closed")
		e.l.Info("market closed, skipping scheduled rebalance")
		return
	}
	if !e.running.CompareAndSwap(false, true) {
		e.metrics.RecordSkip("already_running")
		e.l.Info("rebalance already in progress, skipping")
		return
	}

	rctx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	defer cancel()
	res := e.execute(rctx, models.TriggerScheduled)
	if !res.Success && res.Error == domrepo.ErrAlreadyRunning.Error() {
		e.metrics.RecordSkip("already_running")
	}
}

// TriggerManual runs a rebalance synchronously. A run already in flight
// yields a failed result without touching the pipeline.
func (e *Engine) TriggerManual(ctx context.Context) *models.RebalanceResult {
	if !e.running.CompareAndSwap(false, true) {
		e.l.Info("manual rebalance rejected, already running")
		return e.alreadyRunning(models.TriggerManual)
	}
	return e.execute(ctx, models.TriggerManual)
}

// execute runs with the guard already held and releases it on every path.
func (e *Engine) execute(ctx context.Context, trigger models.TriggerType) (res *models.RebalanceResult) {
	e.setRunning(true)
	defer func() {
		e.setRunning(false)
		e.running.Store(false)
	}()

	if e.lock != nil {
		ok, err := e.lock.TryLock(ctx)
		if err != nil || !ok {
			if err != nil {
				e.l.Warn("run lock unavailable", applogger.Error(err))
			}
			return e.alreadyRunning(trigger)
		}
		defer func() {
			if err := e.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				e.l.Warn("run lock release failed", applogger.Error(err))
			}
		}()
	}

	started := e.now()
	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordError("panic")
			e.l.Error("rebalance panicked", applogger.Any("panic", r))
			res = &models.RebalanceResult{
				RunID:        uuid.NewString(),
				Timestamp:    started,
				TriggerType:  trigger,
				Scores:       []models.ScoredAsset{},
				Targets:      []models.TargetPosition{},
				OrdersPlaced: []models.OrderRecord{},
				Error:        fmt.Sprintf("panic: %v", r),
				FinishedAt:   e.now(),
			}
			e.record(ctx, res)
		}
	}()

	res = e.rebalancer.Execute(ctx, trigger)
	if res.Success {
		e.apply(res)
	}
	return res
}

// record writes the audit row for a run that panicked. A second panic while
// recording is logged and dropped.
func (e *Engine) record(ctx context.Context, res *models.RebalanceResult) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordError("panic")
			e.l.Error("recording panicked run failed", applogger.Any("panic", r))
		}
	}()
	e.rebalancer.Record(ctx, res)
}

// apply copies a successful run into the in-memory state.
func (e *Engine) apply(res *models.RebalanceResult) {
	ts := res.Timestamp
	regime := res.Regime
	e.mu.Lock()
	e.state.LastRebalance = &ts
	e.state.CurrentTargets = res.Targets
	e.state.LatestScores = res.Scores
	e.state.Regime = &regime
	e.mu.Unlock()
}

func (e *Engine) setRunning(v bool) {
	e.mu.Lock()
	e.state.IsRunning = v
	e.mu.Unlock()
}

func (e *Engine) alreadyRunning(trigger models.TriggerType) *models.RebalanceResult {
	now := e.now()
	return &models.RebalanceResult{
		RunID:        uuid.NewString(),
		Timestamp:    now,
		TriggerType:  trigger,
		Scores:       []models.ScoredAsset{},
		Targets:      []models.TargetPosition{},
		OrdersPlaced: []models.OrderRecord{},
		Error:        domrepo.ErrAlreadyRunning.Error(),
		FinishedAt:   now,
	}
}

func (e *Engine) updateNextScheduled(ctx context.Context) {
	if !e.cfg.Enabled {
		return
	}
	next := e.schedule.Next(e.now().In(e.cfg.Location))
	e.mu.Lock()
	e.state.NextScheduled = &next
	e.mu.Unlock()
	if err := e.runs.SaveAlgorithmState(context.WithoutCancel(ctx), models.StatePatch{NextScheduled: &next}); err != nil {
		e.l.Warn("persist next schedule failed", applogger.Error(err))
	}
}

// State returns a copy of the current AlgorithmState.
func (e *Engine) State() models.AlgorithmState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// History returns the newest rebalance log entries.
func (e *Engine) History(ctx context.Context, limit int) ([]models.RebalanceResult, error) {
	if limit <= 0 {
		limit = e.cfg.HistoryLimit
	}
	logs, err := e.runs.GetRebalanceLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("rebalance logs: %w", err)
	}
	return logs, nil
}

// Status bundles the state with a live account view and recent history.
// Broker failures degrade to a nil account and no positions.
func (e *Engine) Status(ctx context.Context) (*models.StatusResponse, error) {
	snap := FetchAccountSnapshot(ctx, e.broker)
	for name, err := range snap.Errors {
		e.l.Warn("status broker read failed", applogger.String("read", name), applogger.Error(err))
	}
	if snap.Errors["positions"] != nil {
		snap.Positions = []models.Position{}
	}
	history, err := e.History(ctx, e.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	return &models.StatusResponse{
		State:            e.State(),
		Account:          snap.Account,
		Positions:        snap.Positions,
		RebalanceHistory: history,
	}, nil
}

// Stop unregisters the schedule and waits for an in-flight scheduled run.
func (e *Engine) Stop(ctx context.Context) error {
	defer e.cancel()
	e.mu.Lock()
	e.state.SchedulerActive = false
	e.mu.Unlock()
	if e.cron == nil {
		return nil
	}
	select {
	case <-e.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
