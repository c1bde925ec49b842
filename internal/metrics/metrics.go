package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics represents the collection of all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Standard metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Bridge metrics
	ActiveSessions   prometheus.Gauge
	CommandsTotal    *prometheus.CounterVec
	CommandDuration  prometheus.Histogram
	WorkflowsTotal   *prometheus.CounterVec
	SessionsExpired  prometheus.Counter
	ScreenPollsTotal prometheus.Counter
	JobsSubmitted    *prometheus.CounterVec
	TransfersTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_active_sessions",
			Help: "Number of live emulator sessions",
		},
	)

	m.CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_commands_total",
			Help: "Emulator command round-trips by result status",
		},
		[]string{"status"},
	)

	m.CommandDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_command_duration_seconds",
			Help:    "Emulator command round-trip latency",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	m.WorkflowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_workflows_total",
			Help: "Workflow executions by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	m.SessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_sessions_expired_total",
			Help: "Sessions removed by the TTL sweep",
		},
	)

	m.ScreenPollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_screen_polls_total",
			Help: "Screen reads issued by the stabilizer",
		},
	)

	m.JobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_jobs_submitted_total",
			Help: "JCL submissions by outcome",
		},
		[]string{"outcome"},
	)

	m.TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transfers_total",
			Help: "File transfers by direction and result",
		},
		[]string{"direction", "status"},
	)

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveSessions,
		m.CommandsTotal,
		m.CommandDuration,
		m.WorkflowsTotal,
		m.SessionsExpired,
		m.ScreenPollsTotal,
		m.JobsSubmitted,
		m.TransfersTotal,
	)

	return m
}

// RequestTrackingMiddleware records count and latency for every HTTP request.
func (m *Metrics) RequestTrackingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, http.StatusText(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter is a wrapper to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
