package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels source calls that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels source calls that failed or timed out.
	OutcomeError = "error"
)

var (
	sourceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exposure_search",
			Name:      "source_requests_total",
			Help:      "Total number of per-source searches, partitioned by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	sourceDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "exposure_search",
			Name:      "source_seconds",
			Help:      "Per-source search latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"source"},
	)

	fanOutDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "exposure_search",
			Name:      "fanout_seconds",
			Help:      "Aggregated search latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
	)

	sourceHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "exposure_search",
			Name:      "source_healthy",
			Help:      "1 when the last probe found the source healthy.",
		},
		[]string{"source"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "exposure_search",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per external source (0 closed, 1 open, 2 half-open).",
		},
		[]string{"source"},
	)

	fallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exposure_search",
			Name:      "fallback_total",
			Help:      "Document-store fallback searches, partitioned by search type.",
		},
		[]string{"type"},
	)
)

// Register attaches exposure-search collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		sourceRequestsTotal,
		sourceDurationSeconds,
		fanOutDurationSeconds,
		sourceHealthy,
		breakerState,
		fallbackTotal,
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

// ObserveSourceSearch records one per-source call.
func ObserveSourceSearch(source string, duration time.Duration, success bool) {
	label := OutcomeSuccess
	if !success {
		label = OutcomeError
	}
	sourceRequestsTotal.WithLabelValues(source, label).Inc()
	if duration < 0 {
		duration = 0
	}
	sourceDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveFanOut records the wall time of an aggregated search.
func ObserveFanOut(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	fanOutDurationSeconds.Observe(duration.Seconds())
}

// SetSourceHealthy publishes the latest probe result.
func SetSourceHealthy(source string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	sourceHealthy.WithLabelValues(source).Set(v)
}

// SetBreakerState publishes a breaker transition.
func SetBreakerState(source string, state int) {
	breakerState.WithLabelValues(source).Set(float64(state))
}

// IncFallback counts a degraded document-store search.
func IncFallback(searchType string) {
	fallbackTotal.WithLabelValues(searchType).Inc()
}
