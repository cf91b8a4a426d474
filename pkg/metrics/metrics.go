package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogsync_sweeps_total",
			Help: "Total number of scheduler sweeps by outcome",
		},
		[]string{"outcome"},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalogsync_sweep_duration_seconds",
			Help:    "Time taken for a full scheduler sweep across all enabled stores",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogsync_runs_total",
			Help: "Total number of SyncEngine runs by store and outcome",
		},
		[]string{"store", "outcome"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalogsync_run_duration_seconds",
			Help:    "Time taken for one SyncEngine run",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "mode"},
	)

	ConsecutiveFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalogsync_consecutive_failures",
			Help: "Consecutive failed runs for a store, drives the degraded/unhealthy health verdict",
		},
		[]string{"store"},
	)

	DependencyErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogsync_dependency_errors_total",
			Help: "Total errors attributed to a dependency (source-of-truth or marketplace)",
		},
		[]string{"store", "dependency"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogsync_rate_limit_hits_total",
			Help: "Total 429 responses observed from the marketplace, by venue",
		},
		[]string{"venue"},
	)

	BatchSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalogsync_batch_size",
			Help: "Current adaptive batch size in effect for a venue",
		},
		[]string{"venue"},
	)

	RateGateDelaySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalogsync_rate_gate_delay_seconds",
			Help:    "Time a call waited at the per-venue rate gate before proceeding",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"venue"},
	)

	ItemsPushedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogsync_items_pushed_total",
			Help: "Total SKU updates pushed to the marketplace by phase",
		},
		[]string{"store", "phase"},
	)

	ForcedZeroPriceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogsync_forced_zero_price_total",
			Help: "Total SKUs emitted with the invalid-price force-zero rule",
		},
		[]string{"store"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalogsync_circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open",
		},
		[]string{"breaker"},
	)

	BackgroundWorkerProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalogsync_background_worker_percent_complete",
			Help: "Percent of catalog synced by a store's background worker",
		},
		[]string{"store"},
	)
)

func init() {
	prometheus.MustRegister(
		SweepsTotal,
		SweepDuration,
		RunsTotal,
		RunDuration,
		ConsecutiveFailures,
		DependencyErrorsTotal,
		RateLimitHitsTotal,
		BatchSize,
		RateGateDelaySeconds,
		ItemsPushedTotal,
		ForcedZeroPriceTotal,
		CircuitBreakerState,
		BackgroundWorkerProgress,
	)
}

// Handler returns the Prometheus scrape handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time for a single operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// CircuitStateValue maps a breaker's textual state to the numeric
// gauge value CircuitBreakerState expects.
func CircuitStateValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half-open":
		return 1
	default:
		return 0
	}
}
