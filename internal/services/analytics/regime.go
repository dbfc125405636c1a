package analytics

import "Rotator/internal/domain/models"

// DefaultBenchmarkSMAPeriod is the long trend window for the benchmark.
const DefaultBenchmarkSMAPeriod = 200

// ComputeRegime gates selection on the benchmark closing above its long SMA.
// Missing history is treated as bearish.
func ComputeRegime(bars []models.DailyBar, smaPeriod int) models.RegimeState {
	closes := models.Closes(bars)
	regime := models.RegimeState{
		BenchmarkSMA: SimpleMovingAverage(closes, smaPeriod),
	}
	if len(closes) > 0 {
		regime.BenchmarkLastClose = ptr(closes[len(closes)-1])
	}
	regime.IsBullish = regime.BenchmarkSMA != nil &&
		regime.BenchmarkLastClose != nil &&
		*regime.BenchmarkLastClose > *regime.BenchmarkSMA
	return regime
}
