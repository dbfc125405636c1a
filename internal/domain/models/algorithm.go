package models

import "time"

type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerManual    TriggerType = "manual"
)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatusClosed marks a successful liquidation of an untargeted holding.
const OrderStatusClosed = "closed"

// SymbolIndicators holds per-symbol inputs for scoring. A nil field means
// the history was too short (or degenerate) to compute it.
type SymbolIndicators struct {
	Symbol    string   `json:"symbol"`
	RocFast   *float64 `json:"rocFast"`
	RocMed    *float64 `json:"rocMed"`
	RocSlow   *float64 `json:"rocSlow"`
	StdDev    *float64 `json:"stdDev"`
	RSI       *float64 `json:"rsi"`
	SMA       *float64 `json:"sma"`
	LastClose *float64 `json:"lastClose"`
}

// RegimeState is the benchmark trend filter output.
type RegimeState struct {
	BenchmarkSMA       *float64 `json:"benchmarkSma"`
	BenchmarkLastClose *float64 `json:"benchmarkLastClose"`
	IsBullish          bool     `json:"isBullish"`
}

type ScoredAsset struct {
	Symbol               string  `json:"symbol"`
	WeightedMomentum     float64 `json:"weightedMomentum"`
	RiskAdjustedMomentum float64 `json:"riskAdjustedMomentum"`
	TrendFactor          float64 `json:"trendFactor"`
	FinalScore           float64 `json:"finalScore"`
	AnnualizedVolatility float64 `json:"annualizedVolatility"`
}

type TargetPosition struct {
	Symbol       string  `json:"symbol"`
	Weight       float64 `json:"weight"`
	DollarAmount float64 `json:"dollarAmount"`
	Shares       int64   `json:"shares"`
	IsLeveraged  bool    `json:"isLeveraged"`
}

type OrderRecord struct {
	Symbol        string    `json:"symbol"`
	Side          OrderSide `json:"side"`
	Quantity      float64   `json:"quantity"`
	OrderType     string    `json:"orderType"`
	Status        string    `json:"status"`
	ClientOrderID string    `json:"clientOrderId,omitempty"`
}

// RebalanceResult is the immutable audit record of one pipeline run.
type RebalanceResult struct {
	RunID         string           `json:"runId"`
	Timestamp     time.Time        `json:"timestamp"`
	TriggerType   TriggerType      `json:"triggerType"`
	Regime        RegimeState      `json:"regime"`
	Scores        []ScoredAsset    `json:"scores"`
	Targets       []TargetPosition `json:"targets"`
	OrdersPlaced  []OrderRecord    `json:"ordersPlaced"`
	AccountEquity float64          `json:"accountEquity"`
	Success       bool             `json:"success"`
	Error         string           `json:"error,omitempty"`
	FinishedAt    time.Time        `json:"finishedAt"`
}

// AlgorithmState is the in-memory view of the latest known good run plus
// scheduler flags.
type AlgorithmState struct {
	LastRebalance   *time.Time       `json:"lastRebalance"`
	NextScheduled   *time.Time       `json:"nextScheduled"`
	CurrentTargets  []TargetPosition `json:"currentTargets"`
	LatestScores    []ScoredAsset    `json:"latestScores"`
	Regime          *RegimeState     `json:"regime"`
	IsRunning       bool             `json:"isRunning"`
	SchedulerActive bool             `json:"schedulerActive"`
}

// StatePatch is a partial update of the persisted algorithm state.
// Nil fields leave the stored value untouched.
type StatePatch struct {
	LastRebalance  *time.Time
	NextScheduled  *time.Time
	CurrentTargets []TargetPosition
	LatestScores   []ScoredAsset
	Regime         *RegimeState
}

// Clone returns a deep-enough copy safe to hand out to readers.
func (s AlgorithmState) Clone() AlgorithmState {
	out := s
	if s.CurrentTargets != nil {
		out.CurrentTargets = make([]TargetPosition, len(s.CurrentTargets))
		copy(out.CurrentTargets, s.CurrentTargets)
	}
	if s.LatestScores != nil {
		out.LatestScores = make([]ScoredAsset, len(s.LatestScores))
		copy(out.LatestScores, s.LatestScores)
	}
	if s.Regime != nil {
		r := *s.Regime
		out.Regime = &r
	}
	return out
}
