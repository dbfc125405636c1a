package usecase

import (
	"context"
	"fmt"
	"sync"

	"Rotator/internal/domain/models"
	domrepo "Rotator/internal/domain/repository"
)

// AccountSnapshot is the live account and its holdings read side by side.
// Errors is keyed by "account" or "positions" and nil when both reads
// succeeded.
type AccountSnapshot struct {
	Account   *models.Account
	Positions []models.Position
	Errors    map[string]error
}

// Err folds the per-read errors into one, account first.
func (s AccountSnapshot) Err() error {
	if err := s.Errors["account"]; err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if err := s.Errors["positions"]; err != nil {
		return fmt.Errorf("get positions: %w", err)
	}
	return nil
}

// FetchAccountSnapshot reads account and positions concurrently.
func FetchAccountSnapshot(ctx context.Context, broker domrepo.Broker) AccountSnapshot {
	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := broker.GetAccount(ctx)
		ch <- item{"account", v, err}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := broker.GetPositions(ctx)
		ch <- item{"positions", v, err}
	}()

	go func() { wg.Wait(); close(ch) }()

	snap := AccountSnapshot{Errors: map[string]error{}}
	for it := range ch {
		if it.err != nil {
			snap.Errors[it.name] = it.err
			continue
		}
		switch it.name {
		case "account":
			snap.Account = it.val.(*models.Account)
		case "positions":
			snap.Positions = it.val.([]models.Position)
		}
	}
	if snap.Positions == nil {
		snap.Positions = []models.Position{}
	}
	if len(snap.Errors) == 0 {
		snap.Errors = nil
	}
	return snap
}
