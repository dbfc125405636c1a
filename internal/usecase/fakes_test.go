package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"Rotator/internal/domain/models"
	domrepo "Rotator/internal/domain/repository"
)

type memBarStore struct {
	mu        sync.Mutex
	bars      map[string][]models.DailyBar // ascending
	upserts   int
	latestErr error
}

func newMemBarStore() *memBarStore {
	return &memBarStore{bars: map[string][]models.DailyBar{}}
}

func (s *memBarStore) Init(context.Context) error { return nil }

func (s *memBarStore) UpsertBars(_ context.Context, bars []models.DailyBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	for _, b := range bars {
		list := s.bars[b.Symbol]
		replaced := false
		for i := range list {
			if list[i].Date.Equal(b.Date) {
				list[i] = b
				replaced = true
			}
		}
		if !replaced {
			list = append(list, b)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Date.Before(list[j].Date) })
		s.bars[b.Symbol] = list
	}
	return nil
}

func (s *memBarStore) GetBars(_ context.Context, symbol string, limit int) ([]models.DailyBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.bars[symbol]
	out := make([]models.DailyBar, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func (s *memBarStore) GetLatestDates(_ context.Context, symbols []string) (map[string]time.Time, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]time.Time{}
	for _, sym := range symbols {
		if list := s.bars[sym]; len(list) > 0 {
			out[sym] = list[len(list)-1].Date
		}
	}
	return out, nil
}

func (s *memBarStore) Health(context.Context) error { return nil }

type fetchCall struct {
	symbols []string
	start   time.Time
}

type fakeMarketData struct {
	mu    sync.Mutex
	calls []fetchCall
	err   error
	// bars returns what a fetch yields per symbol; nil means nothing.
	bars func(symbol string, start time.Time) []models.DailyBar
}

func (f *fakeMarketData) FetchDailyBars(_ context.Context, symbols []string, start, _ time.Time) (map[string][]models.DailyBar, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{symbols: append([]string(nil), symbols...), start: start})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := map[string][]models.DailyBar{}
	for _, s := range symbols {
		if f.bars != nil {
			out[s] = f.bars(s, start)
		}
	}
	return out, nil
}

type fakeBroker struct {
	mu         sync.Mutex
	account    *models.Account
	accountErr error
	positions  []models.Position
	posErr     error
	clock      *models.Clock
	clockErr   error
	closeErr   map[string]error
	orderErr   map[string]error
	closed     []string
	submitted  []models.OrderRecord
}

func (b *fakeBroker) GetAccount(context.Context) (*models.Account, error) {
	return b.account, b.accountErr
}

func (b *fakeBroker) GetPositions(context.Context) ([]models.Position, error) {
	return b.positions, b.posErr
}

func (b *fakeBroker) GetClock(context.Context) (*models.Clock, error) {
	return b.clock, b.clockErr
}

func (b *fakeBroker) SubmitMarketOrder(_ context.Context, symbol string, qty float64, side models.OrderSide) (models.OrderRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.orderErr[symbol]; err != nil {
		return models.OrderRecord{}, err
	}
	rec := models.OrderRecord{Symbol: symbol, Side: side, Quantity: qty, OrderType: "market", Status: "accepted", ClientOrderID: "cid-" + symbol}
	b.submitted = append(b.submitted, rec)
	return rec, nil
}

func (b *fakeBroker) ClosePosition(_ context.Context, symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.closeErr[symbol]; err != nil {
		return err
	}
	b.closed = append(b.closed, symbol)
	return nil
}

type fakeRunStore struct {
	mu        sync.Mutex
	logs      []models.RebalanceResult
	patches   []models.StatePatch
	state     *models.AlgorithmState
	appendErr error
	saveErr   error
	loadErr   error
}

func (s *fakeRunStore) Init(context.Context) error { return nil }

func (s *fakeRunStore) AppendRebalanceLog(_ context.Context, r *models.RebalanceResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.logs = append(s.logs, *r)
	return nil
}

func (s *fakeRunStore) GetRebalanceLogs(_ context.Context, limit int) ([]models.RebalanceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.RebalanceResult{}
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.logs[i])
	}
	return out, nil
}

func (s *fakeRunStore) LoadAlgorithmState(context.Context) (*models.AlgorithmState, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.state == nil {
		return nil, domrepo.ErrNotFound
	}
	st := *s.state
	return &st, nil
}

func (s *fakeRunStore) SaveAlgorithmState(_ context.Context, patch models.StatePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.patches = append(s.patches, patch)
	return nil
}

func (s *fakeRunStore) Health(context.Context) error { return nil }

func (s *fakeRunStore) savedPatches() []models.StatePatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StatePatch(nil), s.patches...)
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
}

func (p *fakePublisher) PublishRebalance(_ context.Context, r *models.RebalanceResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, r.RunID)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type recordingMetrics struct {
	nopMetrics
	mu     sync.Mutex
	skips  []string
	errors []string
	runs   int
}

func (m *recordingMetrics) RecordSkip(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skips = append(m.skips, reason)
}

func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, kind)
}

func (m *recordingMetrics) RecordRebalance(string, bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
}

// series builds n ascending daily bars ending on last, with closes from f.
func series(symbol string, last time.Time, n int, f func(i int) float64) []models.DailyBar {
	out := make([]models.DailyBar, n)
	start := last.AddDate(0, 0, -(n - 1))
	for i := 0; i < n; i++ {
		c := f(i)
		out[i] = models.DailyBar{
			Symbol: symbol,
			Date:   start.AddDate(0, 0, i),
			Open:   c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	return out
}

var (
	_ domrepo.BarStore       = (*memBarStore)(nil)
	_ domrepo.MarketData     = (*fakeMarketData)(nil)
	_ domrepo.Broker         = (*fakeBroker)(nil)
	_ domrepo.RunStore       = (*fakeRunStore)(nil)
	_ domrepo.EventPublisher = (*fakePublisher)(nil)
	_ domrepo.Metrics        = (*recordingMetrics)(nil)
)
