package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels cycles that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels cycles that hit a fatal step error.
	OutcomeError = "error"
	// OutcomeSkipped labels cycles skipped because a previous run still held the mutex.
	OutcomeSkipped = "skipped"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orca_monitor",
			Name:      "cycles_total",
			Help:      "Total number of monitoring cycles, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "orca_monitor",
			Name:      "cycle_seconds",
			Help:      "Monitoring cycle latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 30},
		},
	)

	insightsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orca_monitor",
			Name:      "insights_total",
			Help:      "Insights actually persisted, partitioned by category.",
		},
		[]string{"category"},
	)

	endpointsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "orca_monitor",
			Name:      "endpoints_skipped_total",
			Help:      "Endpoints skipped because their circuit breaker was open.",
		},
	)

	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orca_monitor",
			Name:      "cache_requests_total",
			Help:      "Cache lookups, partitioned by result (hit, miss, stale).",
		},
		[]string{"result"},
	)
)

// Register attaches the engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		cyclesTotal,
		cycleDurationSeconds,
		insightsTotal,
		endpointsSkippedTotal,
		cacheRequestsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCycle records one cycle outcome. Skipped cycles carry no meaningful
// duration and are counted only.
func ObserveCycle(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeSkipped:
	default:
		outcome = OutcomeSuccess
	}
	cyclesTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSkipped {
		return
	}
	if duration < 0 {
		duration = 0
	}
	cycleDurationSeconds.Observe(duration.Seconds())
}

// CountInsight increments the persisted-insight counter for a category.
func CountInsight(category string) {
	insightsTotal.WithLabelValues(category).Inc()
}

// CountSkippedEndpoint increments the breaker-skip counter.
func CountSkippedEndpoint() {
	endpointsSkippedTotal.Inc()
}

// CountCacheResult records a cache lookup result: "hit", "miss" or "stale".
func CountCacheResult(result string) {
	cacheRequestsTotal.WithLabelValues(result).Inc()
}
