package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Rotator/internal/domain/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyRunning = errors.New("rebalance already in progress")
)

// BrokerError is a rejection reported by the broker API.
type BrokerError struct {
	StatusCode int
	Message    string
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker error %d: %s", e.StatusCode, e.Message)
}

// BarStore is the durable cache of daily bars keyed by (symbol, date).
type BarStore interface {
	Init(ctx context.Context) error
	// UpsertBars inserts or replaces bars; later writes win.
	UpsertBars(ctx context.Context, bars []models.DailyBar) error
	// GetBars returns up to limit most recent bars, newest first.
	GetBars(ctx context.Context, symbol string, limit int) ([]models.DailyBar, error)
	// GetLatestDates returns the newest cached date per symbol. Symbols
	// without bars are absent from the map.
	GetLatestDates(ctx context.Context, symbols []string) (map[string]time.Time, error)
	Health(ctx context.Context) error
}

// MarketData fetches historical daily bars. A zero end means "up to now".
// Symbols with no data may be absent or map to an empty slice.
type MarketData interface {
	FetchDailyBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]models.DailyBar, error)
}

// Broker is the brokerage account the engine trades.
type Broker interface {
	GetAccount(ctx context.Context) (*models.Account, error)
	GetPositions(ctx context.Context) ([]models.Position, error)
	GetClock(ctx context.Context) (*models.Clock, error)
	// SubmitMarketOrder places a day market order. The returned record
	// carries the broker's status; rejections come back as *BrokerError.
	SubmitMarketOrder(ctx context.Context, symbol string, qty float64, side models.OrderSide) (models.OrderRecord, error)
	// ClosePosition liquidates the whole holding. Closing a symbol that is
	// not held is not an error.
	ClosePosition(ctx context.Context, symbol string) error
}

// RunStore persists rebalance audit logs and the algorithm state row.
type RunStore interface {
	Init(ctx context.Context) error
	AppendRebalanceLog(ctx context.Context, result *models.RebalanceResult) error
	GetRebalanceLogs(ctx context.Context, limit int) ([]models.RebalanceResult, error)
	// LoadAlgorithmState returns ErrNotFound when nothing was saved yet.
	LoadAlgorithmState(ctx context.Context) (*models.AlgorithmState, error)
	SaveAlgorithmState(ctx context.Context, patch models.StatePatch) error
	Health(ctx context.Context) error
}

// EventPublisher announces finished runs to downstream consumers.
type EventPublisher interface {
	PublishRebalance(ctx context.Context, result *models.RebalanceResult) error
	Close() error
}

// RunLock guards against concurrent runs across processes.
type RunLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

type Metrics interface {
	RecordRebalance(trigger string, success bool, seconds float64)
	RecordOrder(side, status string)
	RecordBarsFetched(symbol string, count int)
	RecordEquity(equity float64)
	RecordTargetWeight(symbol string, weight float64)
	RecordSkip(reason string)
	RecordError(kind string)
}
