// Package metrics exposes the platform's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "askeve"

var (
	// AnalysisDuration observes safety analysis latency per resulting severity.
	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "safety",
		Name:      "analysis_duration_seconds",
		Help:      "Time spent analyzing a message for crisis indicators.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"severity"})

	// SLAViolations counts analyses that exceeded the soft latency budget.
	SLAViolations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "safety",
		Name:      "sla_violations_total",
		Help:      "Safety analyses that overran the latency budget.",
	})

	// EscalationsTotal counts escalation events by type and urgency.
	EscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "escalation",
		Name:      "events_total",
		Help:      "Escalation events created, by type and urgency.",
	}, []string{"type", "urgency"})

	// NotificationDeliveries counts webhook delivery outcomes.
	NotificationDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Nurse alert webhook deliveries by final status.",
	}, []string{"status"})

	// ConversationMessages counts processed conversation messages by topic.
	ConversationMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "flow",
		Name:      "messages_total",
		Help:      "Conversation messages processed, by resolved topic.",
	}, []string{"topic"})

	// HandlerErrors counts topic handler failures by topic.
	HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "flow",
		Name:      "handler_errors_total",
		Help:      "Topic handler failures that fell back to the safe response.",
	}, []string{"topic"})
)
