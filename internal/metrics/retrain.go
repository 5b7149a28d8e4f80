package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retrainSignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retrain",
		Name:      "signals_total",
		Help:      "Count of retrain signals by what happened to them.",
	}, []string{"result"})

	retrainRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retrain",
		Name:      "runs_total",
		Help:      "Count of retrain jobs.",
	}, []string{"status"})

	retrainDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "retrain",
		Name:      "duration_seconds",
		Help:      "Duration of retrain jobs.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"status"})

	retrainSamples = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "retrain",
		Name:      "samples",
		Help:      "Number of transactions a retrain job trained on.",
		Buckets:   prometheus.ExponentialBuckets(10, 4, 10),
	})
)

// Retrain tracks metrics for the retrain trigger and worker.
type Retrain struct{}

// NewRetrain constructs a Retrain recorder.
func NewRetrain() Retrain {
	return Retrain{}
}

// ObserveSignal records a signal that was "emitted", "accepted" or "dropped".
func (Retrain) ObserveSignal(result string) {
	retrainSignalsTotal.WithLabelValues(result).Inc()
}

// ObserveRun records a finished retrain job.
func (Retrain) ObserveRun(err error, samples int, started time.Time) {
	st := status(err)
	retrainRunsTotal.WithLabelValues(st).Inc()
	retrainDuration.WithLabelValues(st).Observe(time.Since(started).Seconds())
	if err == nil {
		retrainSamples.Observe(float64(samples))
	}
}
