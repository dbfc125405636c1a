package usecase

import (
	"context"
	"fmt"
	"time"

	"Rotator/internal/domain/models"
	domrepo "Rotator/internal/domain/repository"
	applogger "Rotator/pkg/logger"
	"Rotator/pkg/util"
)

type BarManagerConfig struct {
	// WarmupMonths is how far back a symbol with no cached bars is fetched.
	WarmupMonths int
	// HistoryBars is the default depth returned by History.
	HistoryBars int
	// Location decides which calendar day counts as "today".
	Location *time.Location
}

func DefaultBarManagerConfig() BarManagerConfig {
	return BarManagerConfig{WarmupMonths: 18, HistoryBars: 300, Location: time.UTC}
}

// BarManager keeps the bar store current and serves ascending history.
type BarManager struct {
	store   domrepo.BarStore
	data    domrepo.MarketData
	metrics domrepo.Metrics
	cfg     BarManagerConfig
	l       *applogger.Logger
	now     func() time.Time
}

func NewBarManager(store domrepo.BarStore, data domrepo.MarketData, m domrepo.Metrics, cfg BarManagerConfig, l *applogger.Logger) *BarManager {
	def := DefaultBarManagerConfig()
	if cfg.WarmupMonths <= 0 {
		cfg.WarmupMonths = def.WarmupMonths
	}
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = def.HistoryBars
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if m == nil {
		m = nopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &BarManager{store: store, data: data, metrics: m, cfg: cfg, l: l.Component("bars"), now: time.Now}
}

// EnsureBarsLoaded fetches whatever the store is missing for symbols.
// Symbols never seen get a full warmup window; stale symbols are topped up
// from the day after their newest cached bar. Each group is one bulk
// request. Fetch failures leave the cache as-is; store failures are
// returned.
func (m *BarManager) EnsureBarsLoaded(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	latest, err := m.store.GetLatestDates(ctx, symbols)
	if err != nil {
		return fmt.Errorf("latest bar dates: %w", err)
	}

	today := util.TradingDay(m.now(), m.cfg.Location)
	var fresh, stale []string
	staleStart := today
	for _, s := range symbols {
		d, ok := latest[s]
		switch {
		case !ok:
			fresh = append(fresh, s)
		case d.Before(today):
			stale = append(stale, s)
			if next := util.NextDay(d); next.Before(staleStart) {
				staleStart = next
			}
		}
	}

	if len(fresh) == 0 && len(stale) == 0 {
		m.l.Debug("bars current", applogger.Int("symbols", len(symbols)))
		return nil
	}

	if len(fresh) > 0 {
		start := util.MonthsBefore(today, m.cfg.WarmupMonths)
		if err := m.fetchAndStore(ctx, "warmup", fresh, start); err != nil {
			return err
		}
	}
	if len(stale) > 0 {
		if err := m.fetchAndStore(ctx, "update", stale, staleStart); err != nil {
			return err
		}
	}
	return nil
}

func (m *BarManager) fetchAndStore(ctx context.Context, kind string, symbols []string, start time.Time) error {
	m.l.Info("fetching bars",
		applogger.String("kind", kind),
		applogger.Strings("symbols", symbols),
		applogger.String("start", util.FormatDate(start)))

	fetched, err := m.data.FetchDailyBars(ctx, symbols, start, time.Time{})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.metrics.RecordError("bars_fetch")
		m.l.Warn("bar fetch failed, continuing with cached history",
			applogger.String("kind", kind), applogger.Error(err))
		return nil
	}

	var all []models.DailyBar
	for _, s := range symbols {
		bars := fetched[s]
		m.metrics.RecordBarsFetched(s, len(bars))
		all = append(all, bars...)
	}
	if len(all) == 0 {
		return nil
	}
	if err := m.store.UpsertBars(ctx, all); err != nil {
		return fmt.Errorf("upsert %s bars: %w", kind, err)
	}
	m.l.Info("bars cached",
		applogger.String("kind", kind),
		applogger.Int("bars", len(all)),
		applogger.Int("symbols", len(symbols)))
	return nil
}

// History returns up to n cached bars for symbol, oldest first.
// n <= 0 uses the configured depth.
func (m *BarManager) History(ctx context.Context, symbol string, n int) ([]models.DailyBar, error) {
	if n <= 0 {
		n = m.cfg.HistoryBars
	}
	bars, err := m.store.GetBars(ctx, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("bars for %s: %w", symbol, err)
	}
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// LatestClose returns the newest cached close; ok is false with no bars.
func (m *BarManager) LatestClose(ctx context.Context, symbol string) (float64, bool, error) {
	bars, err := m.store.GetBars(ctx, symbol, 1)
	if err != nil {
		return 0, false, fmt.Errorf("latest bar for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return 0, false, nil
	}
	return bars[0].Close, true, nil
}

type nopMetrics struct{}

func (nopMetrics) RecordRebalance(string, bool, float64) {}
func (nopMetrics) RecordOrder(string, string)            {}
func (nopMetrics) RecordBarsFetched(string, int)         {}
func (nopMetrics) RecordEquity(float64)                  {}
func (nopMetrics) RecordTargetWeight(string, float64)    {}
func (nopMetrics) RecordSkip(string)                     {}
func (nopMetrics) RecordError(string)                    {}
