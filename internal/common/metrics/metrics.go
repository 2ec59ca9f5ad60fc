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
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_calls_total",
			Help: "Total calls to the reasoning/generation service",
		},
		[]string{"operation", "outcome"},
	)

	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "model_call_duration_seconds",
			Help:    "Duration of reasoning/generation calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"operation"},
	)

	DraftsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drafts_generated_total",
			Help: "Drafts produced per composition pass, by style and outcome",
		},
		[]string{"style", "outcome"},
	)

	RevisionsConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revisions_consumed_total",
			Help: "Revision allotment units consumed across all sessions",
		},
	)

	RevisionsRefunded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revisions_refunded_total",
			Help: "Revision units refunded after failed generation",
		},
	)

	SessionPhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_phase_transitions_total",
			Help: "Session phase transitions, by target phase",
		},
		[]string{"to_phase"},
	)

	AnalysisCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_cache_lookups_total",
			Help: "Requirements profile cache lookups, by result",
		},
		[]string{"result"},
	)
)
