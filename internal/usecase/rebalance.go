package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"Rotator/internal/domain/models"
	domrepo "Rotator/internal/domain/repository"
	"Rotator/internal/services/analytics"
	"Rotator/internal/services/portfolio"
	applogger "Rotator/pkg/logger"
)

// Stage names the orchestrator position used in logs.
type Stage string

const (
	StageStart              Stage = "START"
	StageBarsRefreshed      Stage = "BARS_REFRESHED"
	StageIndicatorsComputed Stage = "INDICATORS_COMPUTED"
	StageScored             Stage = "SCORED"
	StageSized              Stage = "SIZED"
	StageAccountFetched     Stage = "ACCOUNT_FETCHED"
	StageDecision           Stage = "DECISION"
	StageSkipped            Stage = "SKIPPED"
	StageExecuting          Stage = "EXECUTING"
	StageLogged             Stage = "LOGGED"
	StageDone               Stage = "DONE"
	StageFailed             Stage = "FAILED"
)

type OrchestratorConfig struct {
	Universe     []string
	Benchmark    string
	BenchmarkSMA int
	HistoryBars  int
	Periods      analytics.Periods
	Strategy     portfolio.Config
	// PersistTimeout bounds log/state writes, which run even when the
	// caller's context is already done.
	PersistTimeout time.Duration
}

// RebalanceOrchestrator runs one end-to-end rebalance.
type RebalanceOrchestrator struct {
	bars    *BarManager
	broker  domrepo.Broker
	runs    domrepo.RunStore
	events  domrepo.EventPublisher
	metrics domrepo.Metrics
	cfg     OrchestratorConfig
	l       *applogger.Logger
	now     func() time.Time
	newID   func() string
}

func NewRebalanceOrchestrator(bars *BarManager, broker domrepo.Broker, runs domrepo.RunStore, events domrepo.EventPublisher, m domrepo.Metrics, cfg OrchestratorConfig, l *applogger.Logger) *RebalanceOrchestrator {
	if cfg.BenchmarkSMA <= 0 {
		cfg.BenchmarkSMA = analytics.DefaultBenchmarkSMAPeriod
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	if m == nil {
		m = nopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &RebalanceOrchestrator{
		bars:    bars,
		broker:  broker,
		runs:    runs,
		events:  events,
		metrics: m,
		cfg:     cfg,
		l:       l.Component("rebalance"),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Execute runs the pipeline and always returns a result. Failures before
// order execution produce a failed result that is still logged; order
// rejections are recorded on the result and never abort the run.
func (o *RebalanceOrchestrator) Execute(ctx context.Context, trigger models.TriggerType) *models.RebalanceResult {
	res := &models.RebalanceResult{
		RunID:       o.newID(),
		Timestamp:   o.now(),
		TriggerType: trigger,
	}
	l := o.l.With(applogger.String("run_id", res.RunID), applogger.String("trigger", string(trigger)))
	l.Info("rebalance started")

	stage := StageStart
	if err := o.run(ctx, res, &stage, l); err != nil {
		l.Error("rebalance failed", applogger.String("stage", string(stage)), applogger.Error(err))
		o.metrics.RecordError("pipeline")
		*res = failedResult(res, err)
		stage = StageFailed
	}
	res.FinishedAt = o.now()

	o.persist(ctx, res, l)
	o.publish(ctx, res, l)
	if stage != StageFailed {
		l.Debug("stage", applogger.String("stage", string(StageLogged)))
		stage = StageDone
	}

	o.metrics.RecordRebalance(string(trigger), res.Success, res.FinishedAt.Sub(res.Timestamp).Seconds())
	l.Info("rebalance finished",
		applogger.String("stage", string(stage)),
		applogger.Bool("success", res.Success),
		applogger.Int("orders", len(res.OrdersPlaced)),
		applogger.Duration("elapsed_ms", res.FinishedAt.Sub(res.Timestamp)))
	return res
}

func (o *RebalanceOrchestrator) run(ctx context.Context, res *models.RebalanceResult, stage *Stage, l *applogger.Logger) error {
	advance := func(s Stage) {
		*stage = s
		l.Debug("stage", applogger.String("stage", string(s)))
	}

	all := o.symbols()
	if err := o.bars.EnsureBarsLoaded(ctx, all); err != nil {
		return fmt.Errorf("refresh bars: %w", err)
	}
	advance(StageBarsRefreshed)

	indicators := make(map[string]models.SymbolIndicators, len(o.cfg.Universe))
	for _, s := range o.cfg.Universe {
		hist, err := o.bars.History(ctx, s, o.cfg.HistoryBars)
		if err != nil {
			return err
		}
		if len(hist) == 0 {
			continue
		}
		indicators[s] = analytics.ComputeIndicators(s, hist, o.cfg.Periods)
	}
	benchHist, err := o.bars.History(ctx, o.cfg.Benchmark, o.cfg.HistoryBars)
	if err != nil {
		return err
	}
	res.Regime = analytics.ComputeRegime(benchHist, o.cfg.BenchmarkSMA)
	advance(StageIndicatorsComputed)
	l.Info("regime computed",
		applogger.String("benchmark", o.cfg.Benchmark),
		applogger.Bool("bullish", res.Regime.IsBullish),
		applogger.Any("last_close", res.Regime.BenchmarkLastClose),
		applogger.Any("sma", res.Regime.BenchmarkSMA))

	res.Scores = portfolio.ScoreAssets(o.cfg.Universe, indicators, o.cfg.Strategy)
	selected := portfolio.SelectPositions(res.Scores, res.Regime, o.cfg.Strategy)
	advance(StageScored)
	l.Info("positions selected",
		applogger.Int("scored", len(res.Scores)),
		applogger.Strings("selected", selected))

	snap := FetchAccountSnapshot(ctx, o.broker)
	if err := snap.Err(); err != nil {
		return err
	}
	if snap.Account == nil {
		return errors.New("get account: empty response")
	}
	res.AccountEquity = snap.Account.Equity
	o.metrics.RecordEquity(res.AccountEquity)
	advance(StageAccountFetched)

	prices := make(map[string]float64, len(all))
	for _, s := range all {
		px, ok, err := o.bars.LatestClose(ctx, s)
		if err != nil {
			return err
		}
		if ok {
			prices[s] = px
		}
	}
	res.Targets = portfolio.CalculateTargetWeights(selected, res.Scores, res.AccountEquity, prices, o.cfg.Strategy)
	for _, t := range res.Targets {
		o.metrics.RecordTargetWeight(t.Symbol, t.Weight)
	}
	advance(StageSized)
	l.Info("targets sized", applogger.Any("targets", res.Targets))

	advance(StageDecision)
	trade := res.TriggerType == models.TriggerManual ||
		portfolio.ShouldRebalance(snap.Positions, res.Targets, res.AccountEquity, o.cfg.Strategy.Deadband)
	res.Success = true
	if !trade {
		res.OrdersPlaced = []models.OrderRecord{}
		advance(StageSkipped)
		o.metrics.RecordSkip("within_deadband")
		l.Info("positions within deadband, no orders")
		return nil
	}

	advance(StageExecuting)
	res.OrdersPlaced = o.executeOrders(ctx, res.Targets, snap.Positions, l)
	return nil
}

// executeOrders closes untargeted holdings first, then trades each target
// to its share count.
func (o *RebalanceOrchestrator) executeOrders(ctx context.Context, targets []models.TargetPosition, positions []models.Position, l *applogger.Logger) []models.OrderRecord {
	orders := []models.OrderRecord{}
	targeted := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		targeted[t.Symbol] = struct{}{}
	}

	for _, p := range positions {
		if _, ok := targeted[p.Symbol]; ok {
			continue
		}
		rec := models.OrderRecord{
			Symbol:    p.Symbol,
			Side:      models.SideSell,
			Quantity:  p.Qty,
			OrderType: "market",
			Status:    models.OrderStatusClosed,
		}
		if err := o.broker.ClosePosition(ctx, p.Symbol); err != nil {
			rec.Status = errorStatus(err)
			l.Warn("close position failed", applogger.String("symbol", p.Symbol), applogger.Error(err))
		} else {
			l.Info("position closed", applogger.String("symbol", p.Symbol), applogger.Float64("qty", p.Qty))
		}
		o.metrics.RecordOrder(string(rec.Side), rec.Status)
		orders = append(orders, rec)
	}

	held := make(map[string]float64, len(positions))
	for _, p := range positions {
		held[p.Symbol] = p.Qty
	}
	for _, t := range targets {
		if t.Shares <= 0 {
			continue
		}
		delta := float64(t.Shares) - held[t.Symbol]
		if delta == 0 {
			continue
		}
		side := models.SideBuy
		if delta < 0 {
			side = models.SideSell
		}
		qty := math.Abs(delta)

		rec, err := o.broker.SubmitMarketOrder(ctx, t.Symbol, qty, side)
		if err != nil {
			rec = models.OrderRecord{
				Symbol:    t.Symbol,
				Side:      side,
				Quantity:  qty,
				OrderType: "market",
				Status:    errorStatus(err),
			}
			l.Warn("order rejected",
				applogger.String("symbol", t.Symbol),
				applogger.String("side", string(side)),
				applogger.Float64("qty", qty),
				applogger.Error(err))
		} else {
			l.Info("order submitted",
				applogger.String("symbol", t.Symbol),
				applogger.String("side", string(side)),
				applogger.Float64("qty", qty),
				applogger.String("status", rec.Status))
		}
		o.metrics.RecordOrder(string(side), rec.Status)
		orders = append(orders, rec)
	}
	return orders
}

// Record persists and publishes a result produced outside Execute, such as
// a run that panicked. Writes are detached from ctx cancellation.
func (o *RebalanceOrchestrator) Record(ctx context.Context, res *models.RebalanceResult) {
	l := o.l.With(applogger.String("run_id", res.RunID), applogger.String("trigger", string(res.TriggerType)))
	o.persist(ctx, res, l)
	o.publish(ctx, res, l)
}

// persist writes the audit log and, for successful runs, the state row.
// Each write is attempted on its own; failures are only logged.
func (o *RebalanceOrchestrator) persist(ctx context.Context, res *models.RebalanceResult, l *applogger.Logger) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer cancel()

	if err := o.runs.AppendRebalanceLog(pctx, res); err != nil {
		o.metrics.RecordError("persist_log")
		l.Error("append rebalance log failed", applogger.Error(err))
	}
	if !res.Success {
		return
	}
	ts := res.Timestamp
	regime := res.Regime
	patch := models.StatePatch{
		LastRebalance:  &ts,
		CurrentTargets: res.Targets,
		LatestScores:   res.Scores,
		Regime:         &regime,
	}
	if err := o.runs.SaveAlgorithmState(pctx, patch); err != nil {
		o.metrics.RecordError("persist_state")
		l.Error("save algorithm state failed", applogger.Error(err))
	}
}

func (o *RebalanceOrchestrator) publish(ctx context.Context, res *models.RebalanceResult, l *applogger.Logger) {
	if o.events == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer cancel()
	if err := o.events.PublishRebalance(pctx, res); err != nil {
		o.metrics.RecordError("publish")
		l.Warn("publish rebalance event failed", applogger.Error(err))
	}
}

func (o *RebalanceOrchestrator) symbols() []string {
	out := make([]string, 0, len(o.cfg.Universe)+1)
	seen := make(map[string]struct{}, len(o.cfg.Universe)+1)
	for _, s := range append(append([]string{}, o.cfg.Universe...), o.cfg.Benchmark) {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func failedResult(started *models.RebalanceResult, err error) models.RebalanceResult {
	return models.RebalanceResult{
		RunID:        started.RunID,
		Timestamp:    started.Timestamp,
		TriggerType:  started.TriggerType,
		Regime:       models.RegimeState{},
		Scores:       []models.ScoredAsset{},
		Targets:      []models.TargetPosition{},
		OrdersPlaced: []models.OrderRecord{},
		Success:      false,
		Error:        err.Error(),
	}
}

// errorStatus renders a rejected order as "error: <status code>", falling
// back to the message for non-broker errors.
func errorStatus(err error) string {
	var be *domrepo.BrokerError
	if errors.As(err, &be) {
		return fmt.Sprintf("error: %d", be.StatusCode)
	}
	return "error: " + err.Error()
}
