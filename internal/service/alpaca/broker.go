package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"Rotator/internal/domain/models"
	"Rotator/internal/domain/repository"
	"Rotator/pkg/logger"
)

// BrokerConfig holds trading API credentials and limits.
type BrokerConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Timeout   time.Duration
	Breaker   BreakerConfig
}

// BrokerClient implements repository.Broker over the Alpaca trading API.
type BrokerClient struct {
	client  *alpacaapi.Client
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *logger.Logger
}

func NewBrokerClient(cfg BrokerConfig, l *logger.Logger) *BrokerClient {
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "alpaca-trading"
	}
	return &BrokerClient{
		client: alpacaapi.NewClient(alpacaapi.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.BaseURL,
		}),
		breaker: newBreaker(cfg.Breaker),
		timeout: cfg.Timeout,
		logger:  l.Component("alpaca-broker"),
	}
}

func (b *BrokerClient) GetAccount(ctx context.Context) (*models.Account, error) {
	acct, err := guarded(ctx, b.breaker, b.timeout, func() (*alpacaapi.Account, error) {
		a, err := b.client.GetAccount()
		return a, mapError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &models.Account{
		ID:             acct.ID,
		Status:         string(acct.Status),
		Equity:         acct.Equity.InexactFloat64(),
		Cash:           acct.Cash.InexactFloat64(),
		BuyingPower:    acct.BuyingPower.InexactFloat64(),
		PortfolioValue: acct.PortfolioValue.InexactFloat64(),
	}, nil
}

func (b *BrokerClient) GetPositions(ctx context.Context) ([]models.Position, error) {
	raw, err := guarded(ctx, b.breaker, b.timeout, func() ([]alpacaapi.Position, error) {
		p, err := b.client.GetPositions()
		return p, mapError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	out := make([]models.Position, 0, len(raw))
	for _, p := range raw {
		out = append(out, toPosition(p))
	}
	return out, nil
}

func (b *BrokerClient) GetClock(ctx context.Context) (*models.Clock, error) {
	clock, err := guarded(ctx, b.breaker, b.timeout, func() (*alpacaapi.Clock, error) {
		c, err := b.client.GetClock()
		return c, mapError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("get clock: %w", err)
	}
	return &models.Clock{
		Timestamp: clock.Timestamp,
		IsOpen:    clock.IsOpen,
		NextOpen:  clock.NextOpen,
		NextClose: clock.NextClose,
	}, nil
}

// SubmitMarketOrder places a day market order tagged with a fresh client
// order id. Orders bypass the breaker so every attempt reaches the broker.
func (b *BrokerClient) SubmitMarketOrder(ctx context.Context, symbol string, qty float64, side models.OrderSide) (models.OrderRecord, error) {
	record := models.OrderRecord{
		Symbol:        symbol,
		Side:          side,
		Quantity:      qty,
		OrderType:     string(alpacaapi.Market),
		ClientOrderID: uuid.NewString(),
	}

	q := decimal.NewFromFloat(qty)
	order, err := callWithTimeout(ctx, b.timeout, func() (*alpacaapi.Order, error) {
		o, err := b.client.PlaceOrder(alpacaapi.PlaceOrderRequest{
			Symbol:        symbol,
			Qty:           &q,
			Side:          alpacaapi.Side(side),
			Type:          alpacaapi.Market,
			TimeInForce:   alpacaapi.Day,
			ClientOrderID: record.ClientOrderID,
		})
		return o, mapError(err)
	})
	if err != nil {
		b.logger.Warn("order rejected",
			logger.String("symbol", symbol),
			logger.String("side", string(side)),
			logger.Float64("qty", qty),
			logger.Error(err))
		return record, err
	}

	record.Status = string(order.Status)
	b.logger.Info("order submitted",
		logger.String("symbol", symbol),
		logger.String("side", string(side)),
		logger.Float64("qty", qty),
		logger.String("status", record.Status),
		logger.String("order_id", order.ID))
	return record, nil
}

// ClosePosition liquidates symbol. A 404 means nothing is held.
func (b *BrokerClient) ClosePosition(ctx context.Context, symbol string) error {
	_, err := callWithTimeout(ctx, b.timeout, func() (*alpacaapi.Order, error) {
		o, err := b.client.ClosePosition(symbol, alpacaapi.ClosePositionRequest{})
		return o, mapError(err)
	})
	var be *repository.BrokerError
	if errors.As(err, &be) && be.StatusCode == http.StatusNotFound {
		b.logger.Debug("close skipped, position not held", logger.String("symbol", symbol))
		return nil
	}
	if err != nil {
		return fmt.Errorf("close position %s: %w", symbol, err)
	}
	return nil
}

func toPosition(p alpacaapi.Position) models.Position {
	return models.Position{
		Symbol:         p.Symbol,
		Qty:            p.Qty.InexactFloat64(),
		Side:           string(p.Side),
		MarketValue:    decimalOrZero(p.MarketValue),
		CostBasis:      p.CostBasis.InexactFloat64(),
		CurrentPrice:   decimalOrZero(p.CurrentPrice),
		UnrealizedPL:   decimalOrZero(p.UnrealizedPL),
		UnrealizedPLPC: decimalOrZero(p.UnrealizedPLPC),
	}
}

func decimalOrZero(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}

var _ repository.Broker = (*BrokerClient)(nil)
