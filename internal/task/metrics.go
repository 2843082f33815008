package task

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comic_server_tasks_submitted_total",
			Help: "Total number of generation tasks submitted.",
		},
		[]string{"kind", "priority"},
	)
	tasksCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comic_server_tasks_completed_total",
			Help: "Total number of generation tasks finished, by outcome.",
		},
		[]string{"kind", "status"},
	)
	taskExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comic_server_task_execution_duration_seconds",
			Help:    "Histogram of generation task execution durations.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"kind"},
	)
	tasksBacklogDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "comic_server_tasks_backlog_depth",
			Help: "Number of tasks waiting in the executor backlog.",
		},
	)
	tasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "comic_server_tasks_in_flight",
			Help: "Number of tasks currently executing.",
		},
	)
)

func recordSubmitted(kind, priority string) {
	tasksSubmittedTotal.With(prometheus.Labels{"kind": kind, "priority": priority}).Inc()
}

func recordFinished(kind string, success bool, seconds float64) {
	status := "completed"
	if !success {
		status = "failed"
	}
	tasksCompletedTotal.With(prometheus.Labels{"kind": kind, "status": status}).Inc()
	taskExecutionDuration.With(prometheus.Labels{"kind": kind}).Observe(seconds)
}
