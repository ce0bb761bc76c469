package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// breakerState tracks the current state of each breaker.
	// Values: 0=closed, 1=half-open, 2=open
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signalwatch_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"dependency"},
	)

	breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"dependency", "from", "to"},
	)

	rateLimitDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_rate_limit_denied_total",
			Help: "Total number of calls denied by a dependency rate limiter",
		},
		[]string{"dependency"},
	)
)

func init() {
	prometheus.MustRegister(breakerState)
	prometheus.MustRegister(breakerTransitions)
	prometheus.MustRegister(rateLimitDenied)
}

// RecordBreakerTransition records a state transition and the new state.
// Use it as (or from) BreakerConfig.OnStateChange.
func RecordBreakerTransition(name string, from, to State) {
	breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	breakerState.WithLabelValues(name).Set(float64(to))
}
