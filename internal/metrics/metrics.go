// Package metrics provides generic HTTP request instrumentation, kept
// separate from internal/telemetry's task-domain counters so the webhook
// HTTP surface can be wrapped without every caller pulling in pipeline
// metrics too.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the collection of generic HTTP/process metrics, registered
// into its own registry so that, unlike the package-global default
// registry, constructing more than one instance (as tests do) never
// panics on a duplicate registration.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	MemoryUsage         prometheus.Gauge
	GoroutinesCount     prometheus.Gauge
}

// NewMetrics creates and registers the HTTP/process metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "issuebot_http_requests_total",
				Help: "Total number of webhook HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "issuebot_http_request_duration_seconds",
				Help:    "Duration of webhook HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		MemoryUsage: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "issuebot_process_memory_bytes",
				Help: "Current memory usage in bytes.",
			},
		),
		GoroutinesCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "issuebot_goroutines",
				Help: "Number of active goroutines.",
			},
		),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.MemoryUsage,
		m.GoroutinesCount,
	)

	return m
}

// RequestTrackingMiddleware wraps an http.Handler, recording request count
// and latency by method, path, and status.
func (m *Metrics) RequestTrackingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, http.StatusText(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// UpdateSystemMetrics updates process-level gauges.
func (m *Metrics) UpdateSystemMetrics(memoryBytes uint64, goroutines int) {
	m.MemoryUsage.Set(float64(memoryBytes))
	m.GoroutinesCount.Set(float64(goroutines))
}

// Handler returns the Prometheus scrape handler for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
