package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Count of HTTP requests by route and status code.",
	}, []string{"route", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Count of requests rejected by the per-caller rate cap.",
	})
)

// HTTP tracks metrics for the API server.
type HTTP struct{}

// NewHTTP constructs an HTTP recorder.
func NewHTTP() HTTP {
	return HTTP{}
}

// ObserveRequest records a served request. route is the chi route pattern.
func (HTTP) ObserveRequest(route string, code int, started time.Time) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
}

// ObserveRateLimited records a request rejected by the rate cap.
func (HTTP) ObserveRateLimited() {
	rateLimitedTotal.Inc()
}
