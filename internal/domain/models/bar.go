package models

import "time"

// DailyBar is one adjusted OHLCV candle. Date is the exchange-local trading
// day stored as UTC midnight; (Symbol, Date) is unique in the bar store.
type DailyBar struct {
	Symbol string    `json:"symbol" db:"symbol"`
	Date   time.Time `json:"date" db:"date"`
	Open   float64   `json:"open" db:"open"`
	High   float64   `json:"high" db:"high"`
	Low    float64   `json:"low" db:"low"`
	Close  float64   `json:"close" db:"close"`
	Volume uint64    `json:"volume" db:"volume"`
}

// Closes extracts close prices preserving order.
func Closes(bars []DailyBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
