package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "runs_total",
		Help:      "Count of batch pattern sweeps.",
	}, []string{"status"})

	sweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "duration_seconds",
		Help:      "Duration of batch pattern sweeps.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"status"})

	sweepFlaggedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "flagged_total",
		Help:      "Count of flagged records produced by sweeps, per reason.",
	}, []string{"reason"})
)

// Sweep tracks metrics for the batch pattern detector.
type Sweep struct{}

// NewSweep constructs a Sweep recorder.
func NewSweep() Sweep {
	return Sweep{}
}

// ObserveRun records a finished sweep and its per-reason record counts.
func (Sweep) ObserveRun(err error, perReason map[string]int, started time.Time) {
	st := status(err)
	sweepRunsTotal.WithLabelValues(st).Inc()
	sweepDuration.WithLabelValues(st).Observe(time.Since(started).Seconds())
	for reason, n := range perReason {
		sweepFlaggedTotal.WithLabelValues(reason).Add(float64(n))
	}
}
