package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// event outcomes
const (
	outcomePersisted = "persisted"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeExisting  = "existing"
	outcomeEscalated = "escalated"
	outcomeFailed    = "failed"
)

var (
	agentRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_agent_runs_total",
			Help: "Total number of agent runs by final status",
		},
		[]string{"agent", "status"},
	)

	agentRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signalwatch_agent_run_duration_seconds",
			Help:    "Wall time of one agent run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"agent"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_events_total",
			Help: "Raw events processed by outcome",
		},
		[]string{"agent", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(agentRuns)
	prometheus.MustRegister(agentRunDuration)
	prometheus.MustRegister(eventsTotal)
}
