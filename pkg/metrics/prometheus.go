package metrics

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	rebalances   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	orders       *prometheus.CounterVec
	barsFetched  *prometheus.CounterVec
	equity       prometheus.Gauge
	targetWeight *prometheus.GaugeVec
	skips        *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
}

// New creates a recorder on the default registry.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the recorder's collectors on reg.
func NewWith(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		rebalances: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotator_rebalances_total",
				Help: "Total number of rebalance runs by trigger and outcome",
			},
			[]string{"trigger", "success"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rotator_rebalance_duration_seconds",
				Help:    "Duration of rebalance runs in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"trigger"},
		),
		orders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotator_orders_total",
				Help: "Total number of order attempts by side and status",
			},
			[]string{"side", "status"},
		),
		barsFetched: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotator_bars_fetched_total",
				Help: "Total number of daily bars fetched from market data",
			},
			[]string{"symbol"},
		),
		equity: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "rotator_account_equity",
				Help: "Account equity observed by the last run",
			},
		),
		targetWeight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rotator_target_weight",
				Help: "Target portfolio weight per symbol from the last sized run",
			},
			[]string{"symbol"},
		),
		skips: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotator_skips_total",
				Help: "Total number of skipped runs or trades by reason",
			},
			[]string{"reason"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rotator_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordRebalance records one finished run.
func (r *Recorder) RecordRebalance(trigger string, success bool, seconds float64) {
	r.rebalances.WithLabelValues(trigger, strconv.FormatBool(success)).Inc()
	r.duration.WithLabelValues(trigger).Observe(seconds)
}

// RecordOrder records an order attempt. Error statuses collapse into
// "error" to keep label cardinality bounded.
func (r *Recorder) RecordOrder(side, status string) {
	if strings.HasPrefix(status, "error:") {
		status = "error"
	}
	r.orders.WithLabelValues(side, status).Inc()
}

func (r *Recorder) RecordBarsFetched(symbol string, count int) {
	r.barsFetched.WithLabelValues(symbol).Add(float64(count))
}

func (r *Recorder) RecordEquity(equity float64) {
	r.equity.Set(equity)
}

func (r *Recorder) RecordTargetWeight(symbol string, weight float64) {
	r.targetWeight.WithLabelValues(symbol).Set(weight)
}

func (r *Recorder) RecordSkip(reason string) {
	r.skips.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
