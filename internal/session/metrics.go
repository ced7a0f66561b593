package session

import "github.com/prometheus/client_golang/prometheus"

var (
	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eventbot_sessions_active",
		Help: "Users currently inside a submission flow.",
	})
	flowOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventbot_session_outcomes_total",
		Help: "Flow results by flow kind and outcome.",
	}, []string{"kind", "outcome"})
)

func init() {
	prometheus.MustRegister(activeSessions, flowOutcomes)
}

func observe(kind Kind, o Outcome) {
	flowOutcomes.WithLabelValues(string(kind), o.String()).Inc()
}
