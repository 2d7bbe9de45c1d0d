package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics tracks HTTP API traffic by route pattern.
type APIMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiMetrics     *APIMetrics
)

// API returns the process-wide API collectors, registering them on first use.
func API() *APIMetrics {
	apiMetricsOnce.Do(func() {
		apiMetrics = &APIMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "revchain",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "API requests by method, route pattern and status code.",
			}, []string{"method", "route", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "revchain",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "API handler latency.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			}, []string{"method", "route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "revchain",
				Subsystem: "api",
				Name:      "throttled_total",
				Help:      "API requests rejected before reaching a handler.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(apiMetrics.requests, apiMetrics.latency, apiMetrics.throttles)
	})
	return apiMetrics
}

// Observe records one served request. route should be the router pattern,
// never the raw path, to keep label cardinality bounded.
func (m *APIMetrics) Observe(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordThrottle counts a rejected request.
func (m *APIMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(reason).Inc()
}
