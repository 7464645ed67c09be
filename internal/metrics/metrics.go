// Package metrics provides the agent's Prometheus instruments and a client
// for querying node utilization from a Prometheus server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvocationsTotal counts action invocations by outcome.
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "actionagent",
			Name:      "invocations_total",
			Help:      "Total action invocations grouped by action and status",
		},
		[]string{"action", "status"},
	)

	// InvocationDuration tracks wall-clock handler duration per action.
	// Buckets reach past the operation-wait budget.
	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "actionagent",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of action handlers",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"action"},
	)

	// PolicyDenials counts invocations rejected by a deny rule.
	PolicyDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "actionagent",
			Name:      "policy_denials_total",
			Help:      "Invocations rejected by policy rules",
		},
		[]string{"action"},
	)

	// InFlight tracks handlers currently executing.
	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "actionagent",
			Name:      "in_flight_invocations",
			Help:      "Number of action handlers currently executing",
		},
	)
)

// ObserveInvocation records one completed invocation.
func ObserveInvocation(action, status string, seconds float64) {
	InvocationsTotal.WithLabelValues(action, status).Inc()
	InvocationDuration.WithLabelValues(action).Observe(seconds)
}
