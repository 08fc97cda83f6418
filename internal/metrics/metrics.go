// Package metrics exposes Prometheus collectors for the progress service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	heartbeatsTotal            *prometheus.CounterVec
	heartbeatSecondsTotal      prometheus.Counter
	propagationSkippedTotal    *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		heartbeatsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "progress_heartbeats_total",
				Help: "Accepted heartbeats, labeled by how many hierarchy levels they touched.",
			},
			[]string{"levels"},
		)

		heartbeatSecondsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "progress_heartbeat_seconds_total",
				Help: "Engagement seconds credited to leaves.",
			},
		)

		propagationSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "progress_propagation_skipped_total",
				Help: "Propagation steps skipped, labeled by reason.",
			},
			[]string{"reason"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Observer adapts the package collectors to the tracker's observer hooks.
// Init must have been called.
type Observer struct{}

// NewObserver initializes the collectors and returns an Observer.
func NewObserver() Observer {
	Init()
	return Observer{}
}

// ObserveHeartbeat records one accepted heartbeat.
func (Observer) ObserveHeartbeat(levels int, seconds int64) {
	heartbeatsTotal.WithLabelValues(strconv.Itoa(levels)).Inc()
	if seconds > 0 {
		heartbeatSecondsTotal.Add(float64(seconds))
	}
}

// ObservePropagationSkip records a skipped propagation step.
func (Observer) ObservePropagationSkip(reason string) {
	propagationSkippedTotal.WithLabelValues(reason).Inc()
}
