package analytics

import (
	"math"

	"Rotator/internal/domain/models"
)

// TradingDaysPerYear annualizes daily dispersion.
const TradingDaysPerYear = 252

// Periods configures the indicator lookbacks.
type Periods struct {
	RocFast int
	RocMed  int
	RocSlow int
	StdDev  int
	RSI     int
	SMA     int
}

// DefaultPeriods are the lookbacks the strategy was calibrated with.
func DefaultPeriods() Periods {
	return Periods{RocFast: 9, RocMed: 21, RocSlow: 63, StdDev: 21, RSI: 14, SMA: 50}
}

// RateOfChange returns (last - closes[n-1-period]) / closes[n-1-period].
// Nil when the series has period or fewer values, or the base is zero.
func RateOfChange(closes []float64, period int) *float64 {
	if period < 1 || len(closes) <= period {
		return nil
	}
	current := closes[len(closes)-1]
	past := closes[len(closes)-1-period]
	if past == 0 {
		return nil
	}
	return ptr((current - past) / past)
}

// SimpleMovingAverage is the mean of the trailing period values.
func SimpleMovingAverage(closes []float64, period int) *float64 {
	if period < 1 || len(closes) < period {
		return nil
	}
	return ptr(mean(closes[len(closes)-period:]))
}

// StdDev is the population standard deviation of the trailing period values.
func StdDev(closes []float64, period int) *float64 {
	if period < 1 || len(closes) < period {
		return nil
	}
	return ptr(populationStdDev(closes[len(closes)-period:]))
}

// RSI is Wilder's relative strength index. The first period deltas seed the
// averages, the remaining deltas are smoothed in.
func RSI(closes []float64, period int) *float64 {
	if period < 1 || len(closes) < period+1 {
		return nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return ptr(100)
	}
	rs := avgGain / avgLoss
	return ptr(100 - 100/(1+rs))
}

// AnnualizedVolatility is the population stddev of the trailing period simple
// returns scaled by sqrt(252). Returns over a zero base are skipped.
func AnnualizedVolatility(closes []float64, period int) *float64 {
	if period < 1 || len(closes) < period+1 {
		return nil
	}
	window := closes[len(closes)-period-1:]
	returns := make([]float64, 0, period)
	for i := 1; i < len(window); i++ {
		if window[i-1] == 0 {
			continue
		}
		returns = append(returns, window[i]/window[i-1]-1)
	}
	if len(returns) == 0 {
		return nil
	}
	return ptr(populationStdDev(returns) * math.Sqrt(TradingDaysPerYear))
}

// ComputeIndicators derives every indicator for one symbol from its bars,
// which must be sorted by date ascending.
func ComputeIndicators(symbol string, bars []models.DailyBar, p Periods) models.SymbolIndicators {
	closes := models.Closes(bars)
	ind := models.SymbolIndicators{
		Symbol:  symbol,
		RocFast: RateOfChange(closes, p.RocFast),
		RocMed:  RateOfChange(closes, p.RocMed),
		RocSlow: RateOfChange(closes, p.RocSlow),
		StdDev:  StdDev(closes, p.StdDev),
		RSI:     RSI(closes, p.RSI),
		SMA:     SimpleMovingAverage(closes, p.SMA),
	}
	if len(closes) > 0 {
		ind.LastClose = ptr(closes[len(closes)-1])
	}
	return ind
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationStdDev(values []float64) float64 {
	m := mean(values)
	var sq float64
	for _, v := range values {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(values)))
}

func ptr(v float64) *float64 { return &v }
