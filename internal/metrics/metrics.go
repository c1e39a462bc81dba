// Package metrics exposes the runtime's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "a2alite_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "a2alite_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RPCCalls counts JSON-RPC method invocations
	RPCCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "a2alite_rpc_calls_total",
			Help: "Total number of JSON-RPC method calls",
		},
		[]string{"method", "status"},
	)

	// ActiveConsumers tracks stream consumers currently draining tasks
	ActiveConsumers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "a2alite_active_consumers",
			Help: "Number of active stream consumers",
		},
	)

	// TaskTransitions counts task state transitions as observed on streams
	TaskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "a2alite_task_transitions_total",
			Help: "Total number of task state transitions",
		},
		[]string{"state"},
	)

	// StreamEvents counts protocol events forwarded to subscribers
	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "a2alite_stream_events_total",
			Help: "Total number of stream events forwarded to subscribers",
		},
		[]string{"kind"},
	)

	// TasksEvicted counts tasks purged by TTL cleanup
	TasksEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "a2alite_tasks_evicted_total",
			Help: "Total number of tasks purged by TTL cleanup",
		},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware creates an HTTP middleware that records metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/a2a", "/health", "/ready", "/metrics":
		return path
	default:
		if strings.HasPrefix(path, "/.well-known/") {
			return "/.well-known/agent.json"
		}
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRPCCall records a JSON-RPC method invocation
func RecordRPCCall(method, status string) {
	RPCCalls.WithLabelValues(method, status).Inc()
}

// RecordConsumerStart increments the active consumer gauge
func RecordConsumerStart() {
	ActiveConsumers.Inc()
}

// RecordConsumerEnd decrements the active consumer gauge
func RecordConsumerEnd() {
	ActiveConsumers.Dec()
}

// RecordTaskTransition records a task state transition
func RecordTaskTransition(state string) {
	TaskTransitions.WithLabelValues(state).Inc()
}

// RecordStreamEvent records a protocol event forwarded to a subscriber
func RecordStreamEvent(kind string) {
	StreamEvents.WithLabelValues(kind).Inc()
}

// RecordEviction records tasks purged by TTL cleanup
func RecordEviction(count int) {
	TasksEvicted.Add(float64(count))
}
