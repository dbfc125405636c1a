package portfolio

import (
	"math"
	"sort"

	"Rotator/internal/domain/models"
	"Rotator/internal/services/analytics"
)

// ScoreAssets ranks the universe by trend-adjusted, risk-adjusted momentum.
// Symbols missing any ROC or the stddev are skipped, the safe asset is never
// scored. Ties keep universe order.
func ScoreAssets(universe []string, indicators map[string]models.SymbolIndicators, cfg Config) []models.ScoredAsset {
	scores := make([]models.ScoredAsset, 0, len(universe))
	for _, symbol := range universe {
		if symbol == cfg.SafeAsset {
			continue
		}
		ind, ok := indicators[symbol]
		if !ok || ind.RocFast == nil || ind.RocMed == nil || ind.RocSlow == nil || ind.StdDev == nil {
			continue
		}

		vol := *ind.StdDev
		if vol == 0 {
			vol = 1.0
		}

		weighted := *ind.RocFast*cfg.FastWeight + *ind.RocMed*cfg.MedWeight + *ind.RocSlow*cfg.SlowWeight
		riskAdjusted := weighted / vol

		trend := cfg.BelowSMAFactor
		if ind.LastClose != nil && ind.SMA != nil && *ind.LastClose > *ind.SMA {
			trend = cfg.AboveSMAFactor
		}

		scores = append(scores, models.ScoredAsset{
			Symbol:               symbol,
			WeightedMomentum:     weighted,
			RiskAdjustedMomentum: riskAdjusted,
			TrendFactor:          trend,
			FinalScore:           riskAdjusted * trend,
			AnnualizedVolatility: vol * math.Sqrt(analytics.TradingDaysPerYear),
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].FinalScore > scores[j].FinalScore
	})
	return scores
}

// SelectPositions picks the holding set. In a bullish regime the top positive
// scores fill up to MaxPositions slots. When bearish or short of slots the
// defensive asset is added if it scores positive. An empty set falls back to
// the safe asset, so the result is never empty.
func SelectPositions(scores []models.ScoredAsset, regime models.RegimeState, cfg Config) []string {
	selected := make([]string, 0, cfg.MaxPositions+1)

	if regime.IsBullish {
		for _, asset := range scores {
			if asset.FinalScore <= 0 {
				continue
			}
			selected = append(selected, asset.Symbol)
			if len(selected) >= cfg.MaxPositions {
				break
			}
		}
	}

	if !regime.IsBullish || len(selected) < cfg.MaxPositions {
		if def, ok := findScore(scores, cfg.DefensiveAsset); ok && def.FinalScore > 0 && !contains(selected, cfg.DefensiveAsset) {
			// may exceed MaxPositions by one
			selected = append(selected, cfg.DefensiveAsset)
		}
	}

	if len(selected) == 0 {
		return []string{cfg.SafeAsset}
	}
	return selected
}

func findScore(scores []models.ScoredAsset, symbol string) (models.ScoredAsset, bool) {
	for _, s := range scores {
		if s.Symbol == symbol {
			return s, true
		}
	}
	return models.ScoredAsset{}, false
}

func contains(list []string, symbol string) bool {
	for _, s := range list {
		if s == symbol {
			return true
		}
	}
	return false
}
