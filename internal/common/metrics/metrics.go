// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed or thrown by worker",
		},
		[]string{"task_type", "outcome"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	SubmissionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_events_total",
			Help: "Domain events emitted after committed changes",
		},
		[]string{"event_type"},
	)

	EventDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_event_deliveries_total",
			Help: "Event deliveries per sink and result",
		},
		[]string{"sink", "result"},
	)

	SignatureWebhooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esign_webhooks_total",
			Help: "E-sign callbacks by result (applied, duplicate, rejected, failed)",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
