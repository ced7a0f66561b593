package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventbot_tasks_total",
		Help: "Tasks by final result (ok, failed, dropped).",
	}, []string{"task", "result"})
	taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventbot_task_duration_seconds",
		Help:    "Task run time including retries.",
		Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
	}, []string{"task"})
)

func init() {
	prometheus.MustRegister(tasksTotal, taskDuration)
}
