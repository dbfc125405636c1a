package portfolio

import (
	"math"

	"Rotator/internal/domain/models"
)

// CalculateTargetWeights sizes the holding set by inverse volatility.
// Leveraged symbols are capped at LeveragedCap and every weight at 1.0. When
// the realized total stays under ResidualThreshold the safe asset takes the
// remainder, appended last.
func CalculateTargetWeights(selected []string, scores []models.ScoredAsset, equity float64, prices map[string]float64, cfg Config) []models.TargetPosition {
	if len(selected) == 1 && selected[0] == cfg.SafeAsset {
		return []models.TargetPosition{{
			Symbol:       cfg.SafeAsset,
			Weight:       1.0,
			DollarAmount: equity,
			Shares:       shares(equity, prices[cfg.SafeAsset]),
		}}
	}

	bySymbol := make(map[string]models.ScoredAsset, len(scores))
	for _, s := range scores {
		bySymbol[s.Symbol] = s
	}

	n := float64(len(selected))
	targets := make([]models.TargetPosition, 0, len(selected)+1)
	var total float64
	for _, symbol := range selected {
		scored, ok := bySymbol[symbol]
		if !ok {
			continue
		}

		weight := 1.0 / n
		if scored.AnnualizedVolatility > 0 {
			weight = cfg.TargetVolatility / scored.AnnualizedVolatility / n
		}
		leveraged := cfg.isLeveraged(symbol)
		if leveraged {
			weight = math.Min(weight, cfg.LeveragedCap)
		}
		weight = math.Min(weight, 1.0)

		dollars := weight * equity
		targets = append(targets, models.TargetPosition{
			Symbol:       symbol,
			Weight:       weight,
			DollarAmount: dollars,
			Shares:       shares(dollars, prices[symbol]),
			IsLeveraged:  leveraged,
		})
		total += weight
	}

	if total < cfg.ResidualThreshold && !contains(selected, cfg.SafeAsset) {
		remaining := 1.0 - total
		dollars := remaining * equity
		targets = append(targets, models.TargetPosition{
			Symbol:       cfg.SafeAsset,
			Weight:       remaining,
			DollarAmount: dollars,
			Shares:       shares(dollars, prices[cfg.SafeAsset]),
		})
	}
	return targets
}

// shares floors dollars/price; zero when the price is unknown or the amount
// is not positive.
func shares(dollars, price float64) int64 {
	if price <= 0 || dollars <= 0 {
		return 0
	}
	return int64(math.Floor(dollars / price))
}

// ShouldRebalance reports whether live holdings drifted past the deadband or
// hold something the targets dropped. Non-positive equity never trades.
func ShouldRebalance(positions []models.Position, targets []models.TargetPosition, equity, deadband float64) bool {
	if equity <= 0 {
		return false
	}

	current := make(map[string]float64, len(positions))
	for _, p := range positions {
		current[p.Symbol] = p.MarketValue / equity
	}

	targeted := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		targeted[t.Symbol] = struct{}{}
		if math.Abs(current[t.Symbol]-t.Weight) > deadband {
			return true
		}
	}

	for _, p := range positions {
		if _, ok := targeted[p.Symbol]; !ok {
			return true
		}
	}
	return false
}
