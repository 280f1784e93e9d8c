package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_webhooks_total",
			Help: "Total number of inbound webhooks by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	CreditMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_credit_mutations_total",
			Help: "Total number of ledger mutations by direction and bucket",
		},
		[]string{"direction", "bucket"},
	)

	DuplicatePurchasesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studio_duplicate_purchases_total",
			Help: "Total number of redelivered payment webhooks detected via the purchase unique constraint",
		},
	)

	StudioTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_status_transitions_total",
			Help: "Total number of studio lifecycle transitions",
		},
		[]string{"from", "to"},
	)

	DispatchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_dispatch_attempts_total",
			Help: "Total number of generation dispatch attempts by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studio_dispatch_duration_seconds",
			Help:    "Generation dispatch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	HeadshotsRecordedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studio_headshots_recorded_total",
			Help: "Total number of headshot rows written from generation callbacks",
		},
	)
)
