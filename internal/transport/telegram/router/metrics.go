package router

import "github.com/prometheus/client_golang/prometheus"

var inboundDropped = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "eventbot_inbound_dropped_total",
	Help: "Inbound updates dropped by the per-user rate limit.",
})

func init() {
	prometheus.MustRegister(inboundDropped)
}
