// Package metrics exposes Prometheus instrumentation for Kestrel components.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kestrel"

var (
	screeningTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "screening",
		Name:      "transactions_total",
		Help:      "Count of screened transactions by outcome.",
	}, []string{"outcome"})

	screeningDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "screening",
		Name:      "duration_seconds",
		Help:      "Duration of one screening pipeline run.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	screeningReasonsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "screening",
		Name:      "reasons_total",
		Help:      "Count of fraud reasons attached by real-time screening.",
	}, []string{"reason"})

	scorerFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scorer",
		Name:      "failures_total",
		Help:      "Count of scorer failures that fell back to rule-only verdicts.",
	})
)

// Screening tracks metrics for the real-time screening pipeline.
type Screening struct{}

// NewScreening constructs a Screening recorder.
func NewScreening() Screening {
	return Screening{}
}

// ObserveScreening records one pipeline run. outcome is "fraud",
// "legit", "rejected" or "error".
func (Screening) ObserveScreening(outcome string, reasons []string, started time.Time) {
	screeningTotal.WithLabelValues(outcome).Inc()
	screeningDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	for _, r := range reasons {
		screeningReasonsTotal.WithLabelValues(r).Inc()
	}
}

// ObserveScorerFailure records a fail-open scorer outcome.
func (Screening) ObserveScorerFailure() {
	scorerFailuresTotal.Inc()
}
