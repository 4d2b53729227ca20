// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_queries_submitted_total",
			Help: "Total number of queries submitted, by outcome",
		},
		[]string{"outcome"},
	)

	QueriesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_queries_rejected_total",
			Help: "Total number of queries rejected before any backend call",
		},
		[]string{"error_code"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "session_query_duration_seconds",
			Help: "Duration of query processing in seconds",
		},
		[]string{"outcome"},
	)

	CircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_circuit_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_messages_persisted_total",
			Help: "Total number of messages written to the conversation store",
		},
		[]string{"role"},
	)
)
