package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task metrics
	TasksSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbqueue_tasks_submitted_total",
			Help: "Total number of tasks submitted",
		},
	)

	TasksClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbqueue_tasks_claimed_total",
			Help: "Total number of claim operations that won a task",
		},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbqueue_tasks_completed_total",
			Help: "Total number of tasks saved with a terminal status",
		},
		[]string{"status"},
	)

	TasksReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbqueue_tasks_reclaimed_total",
			Help: "Total number of tasks returned to pending from dead workers",
		},
	)

	TasksTimedOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbqueue_tasks_timed_out_total",
			Help: "Total number of tasks whose retry budget ran out",
		},
	)

	SavesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbqueue_saves_discarded_total",
			Help: "Total number of results discarded because the worker lost ownership",
		},
	)

	TaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbqueue_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
	)

	// Worker metrics
	Heartbeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbqueue_heartbeats_total",
			Help: "Total number of heartbeats written",
		},
	)

	CleanupRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dbqueue_cleanup_runs_total",
			Help: "Total number of cleanup sweeps executed",
		},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbqueue_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
