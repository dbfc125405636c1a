package alpaca

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"Rotator/internal/domain/models"
	"Rotator/internal/domain/repository"
	"Rotator/pkg/logger"
)

// MarketDataConfig holds data API credentials and pacing.
type MarketDataConfig struct {
	APIKey    string
	APISecret string
	Feed      string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
	Location  *time.Location
	Breaker   BreakerConfig
}

// MarketDataClient implements repository.MarketData with split-adjusted
// daily bars. The SDK pages through results internally.
type MarketDataClient struct {
	client  *marketdata.Client
	feed    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	loc     *time.Location
	logger  *logger.Logger
}

func NewMarketDataClient(cfg MarketDataConfig, l *logger.Logger) *MarketDataClient {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 3
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "alpaca-marketdata"
	}
	return &MarketDataClient{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
		}),
		feed:    cfg.Feed,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		breaker: newBreaker(cfg.Breaker),
		timeout: cfg.Timeout,
		loc:     cfg.Location,
		logger:  l.Component("alpaca-marketdata"),
	}
}

// FetchDailyBars returns bars per symbol sorted ascending. Every requested
// symbol is present in the map, possibly with no bars.
func (m *MarketDataClient) FetchDailyBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]models.DailyBar, error) {
	out := make(map[string][]models.DailyBar, len(symbols))
	for _, s := range symbols {
		out[s] = nil
	}
	if len(symbols) == 0 {
		return out, nil
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return out, fmt.Errorf("rate limit wait: %w", err)
	}

	req := marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.Split,
		Start:      start,
		End:        end,
	}
	if m.feed != "" {
		req.Feed = marketdata.Feed(m.feed)
	}

	raw, err := guarded(ctx, m.breaker, m.timeout, func() (map[string][]marketdata.Bar, error) {
		bars, err := m.client.GetMultiBars(symbols, req)
		return bars, mapError(err)
	})
	if err != nil {
		return out, fmt.Errorf("fetch daily bars: %w", err)
	}

	for symbol, bars := range raw {
		out[symbol] = toDailyBars(symbol, bars, m.loc)
	}
	m.logger.Debug("fetched daily bars",
		logger.Int("symbols", len(symbols)),
		logger.Time("start", start))
	return out, nil
}

// toDailyBars keys each bar by its exchange-local calendar day.
func toDailyBars(symbol string, bars []marketdata.Bar, loc *time.Location) []models.DailyBar {
	out := make([]models.DailyBar, 0, len(bars))
	for _, b := range bars {
		out = append(out, models.DailyBar{
			Symbol: symbol,
			Date:   tradingDay(b.Timestamp, loc),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: uint64(b.Volume),
		})
	}
	return out
}

func tradingDay(ts time.Time, loc *time.Location) time.Time {
	local := ts.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

var _ repository.MarketData = (*MarketDataClient)(nil)
