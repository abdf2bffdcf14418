package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed The total number of processed messages (counter)
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processed_total",
			Help:      "The total number of processed messages",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingFailed total number of message processing failures (counter)
	MessagesProcessingFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processing_failed_total",
			Help:      "The total number of message processing failures",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingDuration The total time spent processing messages (summary with quantiles 0.5, 0.9, and 0.99)
	MessagesProcessingDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "messages",
			Name:       "processing_duration_seconds",
			Help:       "The total time spent processing messages",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"topic", "handler"},
	)

	// GatewayAttempts counts metadata fetches per gateway and outcome ("success" or "failure").
	GatewayAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketchain",
			Name:      "gateway_attempts_total",
			Help:      "The total number of metadata fetch attempts per gateway",
		},
		[]string{"gateway", "outcome"},
	)

	GatewayAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ticketchain",
			Name:      "gateway_attempt_duration_seconds",
			Help:      "Time spent on a single metadata fetch attempt",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"gateway"},
	)

	PlaceholdersServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ticketchain",
			Name:      "metadata_placeholders_total",
			Help:      "The total number of placeholder documents served after every gateway failed",
		},
	)

	// ReconcileCandidatesDropped counts candidates skipped during reconciliation, by reason.
	ReconcileCandidatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketchain",
			Name:      "reconcile_candidates_dropped_total",
			Help:      "The total number of candidate tokens dropped during ownership reconciliation",
		},
		[]string{"reason"},
	)

	ReconcileDuration = promauto.NewSummary(
		prometheus.SummaryOpts{
			Namespace:  "ticketchain",
			Name:       "reconcile_duration_seconds",
			Help:       "Time spent reconciling the tickets of one owner",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
	)

	WorkflowRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketchain",
			Name:      "workflow_runs_total",
			Help:      "The total number of finished workflow runs",
		},
		[]string{"kind", "outcome"},
	)

	WorkflowStepDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "ticketchain",
			Name:       "workflow_step_duration_seconds",
			Help:       "Time spent in each workflow step",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"kind", "step"},
	)
)
