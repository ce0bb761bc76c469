package correlate

import "github.com/prometheus/client_golang/prometheus"

var compoundSignals = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "signalwatch_compound_signals_total",
		Help: "Compound signals created by the correlation engine.",
	},
	[]string{"rule"},
)

func init() {
	prometheus.MustRegister(compoundSignals)
}
