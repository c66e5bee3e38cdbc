package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts jobs by type and terminal status.
	// Labels: type, status (completed, failed)
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forged",
			Subsystem: "queue",
			Name:      "jobs_total",
			Help:      "Total number of finished jobs by type and status",
		},
		[]string{"type", "status"},
	)

	// JobDuration tracks execution time from start to finish.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "forged",
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Job execution duration in seconds",
			Buckets:   []float64{.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"type"},
	)

	// QueueDepth is the number of jobs waiting to run.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "forged",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of jobs submitted but not yet started",
		},
	)

	// ActiveWorkers is the number of workers currently executing a job.
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "forged",
			Subsystem: "queue",
			Name:      "active_workers",
			Help:      "Number of workers currently executing jobs",
		},
	)
)
