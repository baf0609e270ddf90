// Package metrics declares the Prometheus collectors exported at /metrics.
//
// Collectors are registered on the default registry through promauto, so
// importing the package is enough to expose them. Helpers below keep label
// values consistent across call sites.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vinstack_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vinstack_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vinstack_ws_connections",
			Help: "Current number of websocket connections",
		},
	)

	WSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vinstack_ws_messages_total",
			Help: "Websocket messages by direction and type",
		},
		[]string{"direction", "type"},
	)

	WSMessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vinstack_ws_messages_dropped_total",
			Help: "Websocket messages dropped because of a full buffer or rate limit",
		},
		[]string{"reason"},
	)

	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vinstack_executions_total",
			Help: "Sandbox executions by language and status",
		},
		[]string{"language", "status"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vinstack_execution_duration_seconds",
			Help:    "Sandbox execution time in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"language"},
	)

	QuestCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vinstack_quest_completions_total",
			Help: "Quest completions by kind",
		},
		[]string{"kind"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vinstack_events_published_total",
			Help: "Change events published by table and outcome",
		},
		[]string{"table", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vinstack_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vinstack_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vinstack_cache_lookups_total",
			Help: "Cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)
)

// RecordHTTPRequest observes one finished request.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordExecution observes one sandbox run.
func RecordExecution(language, status string, d time.Duration) {
	ExecutionsTotal.WithLabelValues(language, status).Inc()
	ExecutionDuration.WithLabelValues(language).Observe(d.Seconds())
}

// RecordCacheLookup counts a hit or a miss.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}
