// Package metrics defines the Prometheus metric collectors used by the parse
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Parse sources, used as the "source" label of ParseRequestsTotal.
const (
	SourceHTTP   = "http"
	SourceBatch  = "batch"
	SourceStream = "stream"
)

// Parse results, used as the "result" label of ParseRequestsTotal.
const (
	ResultOK       = "ok"
	ResultEmpty    = "empty"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ParseRequestsTotal   *prometheus.CounterVec
	ParseDuration        prometheus.Histogram
	ConditionNodes       prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	StreamMessagesTotal  *prometheus.CounterVec
	QueryLogEntriesTotal *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ParseRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parse_requests_total",
				Help: "Total parsed queries by source (http, batch, stream) and result (ok, empty, rejected, error).",
			},
			[]string{"source", "result"},
		),
		ParseDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "parse_duration_seconds",
				Help:    "Time spent parsing a single query, cache excluded.",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
		),
		ConditionNodes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "condition_nodes",
				Help:    "Number of nodes in each parsed condition tree.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of condition cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of condition cache misses.",
			},
		),
		StreamMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stream_messages_total",
				Help: "Parse stream messages by status (parsed, malformed, publish_failed).",
			},
			[]string{"status"},
		),
		QueryLogEntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querylog_entries_total",
				Help: "Query log entries by status (written, dropped, failed).",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.HTTPRequestsInFlight,
			m.ParseRequestsTotal,
			m.ParseDuration,
			m.ConditionNodes,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.StreamMessagesTotal,
			m.QueryLogEntriesTotal,
			m.CircuitBreakerState,
		)
	}

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
