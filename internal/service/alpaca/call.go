package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/sony/gobreaker"

	"Rotator/internal/domain/repository"
)

// BreakerConfig tunes the circuit breaker around upstream reads.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: cfg.Name}
	st.Interval = 60 * time.Second
	st.Timeout = cfg.OpenTimeout
	if st.Timeout <= 0 {
		st.Timeout = 60 * time.Second
	}
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 3
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= threshold
	}
	// broker rejections are answers, not outages
	st.IsSuccessful = func(err error) bool {
		var be *repository.BrokerError
		return err == nil || (errors.As(err, &be) && be.StatusCode < http.StatusInternalServerError)
	}
	return gobreaker.NewCircuitBreaker(st)
}

// callWithTimeout runs fn and gives up waiting once ctx or timeout expire.
// The SDK takes no context, so an abandoned call finishes in the background.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("alpaca call abandoned: %w", ctx.Err())
	}
}

// guarded routes fn through the breaker and the timeout.
func guarded[T any](ctx context.Context, cb *gobreaker.CircuitBreaker, timeout time.Duration, fn func() (T, error)) (T, error) {
	v, err := cb.Execute(func() (interface{}, error) {
		return callWithTimeout(ctx, timeout, fn)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// mapError converts SDK API errors into *repository.BrokerError.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *alpacaapi.APIError
	if errors.As(err, &apiErr) {
		return &repository.BrokerError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return err
}
