// Package observability centralizes the Prometheus metrics the gateway
// exposes for the agent loop, delivery queue, and WebSocket connections.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide metrics registry. Construct one with
// NewMetrics and thread it via constructor injection; it is safe for
// concurrent use.
type Metrics struct {
	// LLMCallsTotal counts Supervisor Agent LLM calls by outcome.
	LLMCallsTotal *prometheus.CounterVec

	// LLMLatencySeconds measures LLM call latency.
	LLMLatencySeconds prometheus.Histogram

	// ToolExecutionsTotal counts tool executions by name and outcome.
	ToolExecutionsTotal *prometheus.CounterVec

	// TurnTerminationsTotal buckets agent turns by termination reason:
	// text, awaiting_confirmation, tool_exhausted, step_cap, error.
	TurnTerminationsTotal *prometheus.CounterVec

	// DeliveryQueueDepth gauges the number of pending deliveries on disk.
	DeliveryQueueDepth prometheus.Gauge

	// DeliveryDeadLetterTotal counts deliveries moved to the DLQ.
	DeliveryDeadLetterTotal prometheus.Counter

	// WSConnectionsActive gauges the number of live WebSocket connections.
	WSConnectionsActive prometheus.Gauge

	// MemoryFallbackEngaged counts long-term memory fallback engagements.
	MemoryFallbackEngaged prometheus.Counter
}

// NewMetrics registers and returns a new Metrics collector against reg.
// If reg is nil, the collectors are created but not registered anywhere.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LLMCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_llm_calls_total",
			Help: "Supervisor agent LLM calls by outcome.",
		}, []string{"outcome"}),
		LLMLatencySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_llm_latency_seconds",
			Help:    "LLM call latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		ToolExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_tool_executions_total",
			Help: "Tool executions by tool name and outcome (success|failure).",
		}, []string{"tool", "outcome"}),
		TurnTerminationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_agent_turn_terminations_total",
			Help: "Agent turn terminations by reason.",
		}, []string{"reason"}),
		DeliveryQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aegis_delivery_queue_depth",
			Help: "Number of pending deliveries on disk.",
		}),
		DeliveryDeadLetterTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aegis_delivery_dead_letter_total",
			Help: "Deliveries moved to the dead-letter directory.",
		}),
		WSConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aegis_ws_connections_active",
			Help: "Active WebSocket connections.",
		}),
		MemoryFallbackEngaged: factory.NewCounter(prometheus.CounterOpts{
			Name: "aegis_memory_fallback_engaged_total",
			Help: "Times the long-term memory fallback backend was engaged.",
		}),
	}
}

// NewTestMetrics returns a Metrics bound to a fresh, unregistered
// registry, for use in unit tests that construct multiple instances.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
