// Package metrics provides Prometheus instrumentation for the router.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for the router.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	SearchDuration    prometheus.Histogram
	RunningServers    prometheus.Gauge
	TaskQueueDepth    prometheus.Gauge
	ContentBytesTotal *prometheus.CounterVec
	ActiveRequests    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all router metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	// Include default Go and process collectors
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_operations_total",
				Help: "Total semantic_router operations by operation name and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "router_operation_duration_seconds",
				Help:    "semantic_router operation latency distribution.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "router_search_duration_seconds",
				Help:    "search_tools vector-index query latency, excluding embedding time.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		RunningServers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "router_running_servers",
				Help: "Number of child MCP server processes currently running.",
			},
		),
		TaskQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "router_task_queue_depth",
				Help: "Number of background tasks currently queued in the task pool.",
			},
		),
		ContentBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_content_bytes_total",
				Help: "Total bytes written to the content store by kind.",
			},
			[]string{"kind"},
		),
		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "router_active_requests",
				Help: "Number of semantic_router calls currently being processed.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.SearchDuration,
		m.RunningServers,
		m.TaskQueueDepth,
		m.ContentBytesTotal,
		m.ActiveRequests,
	)

	return m
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordOperation records one completed semantic_router operation.
func (m *Metrics) RecordOperation(operation, outcome string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSearch records a search_tools vector-index query's latency.
func (m *Metrics) RecordSearch(duration time.Duration) {
	m.SearchDuration.Observe(duration.Seconds())
}

// RecordContentBytes records bytes written to the content store for kind
// ("text_chunked", "image", "audio", "binary").
func (m *Metrics) RecordContentBytes(kind string, n int) {
	m.ContentBytesTotal.WithLabelValues(kind).Add(float64(n))
}

// SetRunningServers sets the current count of live child server processes.
func (m *Metrics) SetRunningServers(n int) {
	m.RunningServers.Set(float64(n))
}

// SetTaskQueueDepth sets the current background task queue depth.
func (m *Metrics) SetTaskQueueDepth(n int) {
	m.TaskQueueDepth.Set(float64(n))
}

// Middleware returns an HTTP middleware that instruments requests to the
// transport carrying the semantic_router tool (the HTTP/Streamable-HTTP
// listener, not the tool dispatch itself).
func (m *Metrics) Middleware(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.ActiveRequests.Inc()
		defer m.ActiveRequests.Dec()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rw, r)

		m.RecordOperation(endpoint, strconv.Itoa(rw.statusCode), time.Since(start))
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
