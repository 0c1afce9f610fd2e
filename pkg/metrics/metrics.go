// Package metrics exposes the orchestration counters. Exposition (the
// /metrics endpoint) lives in the web layer, outside this module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "support_agent_turns_total",
		Help: "Orchestration turns by terminal status.",
	}, []string{"status"})

	routesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "support_agent_routes_total",
		Help: "Routing decisions by target agent and decision source.",
	}, []string{"agent", "source"})

	toolFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "support_agent_tool_failures_total",
		Help: "Tool invocations that returned a failure result.",
	}, []string{"tool"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "support_agent_turn_duration_seconds",
		Help:    "Wall-clock duration of one orchestration turn.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

func ObserveTurn(status string, duration time.Duration) {
	turnsTotal.WithLabelValues(status).Inc()
	turnDuration.Observe(duration.Seconds())
}

func RecordRoute(agent, source string) {
	routesTotal.WithLabelValues(agent, source).Inc()
}

func RecordToolFailure(tool string) {
	toolFailuresTotal.WithLabelValues(tool).Inc()
}
