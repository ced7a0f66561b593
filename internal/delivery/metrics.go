package delivery

import "github.com/prometheus/client_golang/prometheus"

var (
	sendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventbot_delivery_sends_total",
		Help: "Delivery send units by operation and result.",
	}, []string{"op", "result"})

	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventbot_delivery_runs_total",
		Help: "Delivery operation runs by operation and result.",
	}, []string{"op", "result"})

	markedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventbot_delivery_marked_total",
		Help: "Rows flagged as delivered or sent.",
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(sendsTotal, runsTotal, markedTotal)
}
