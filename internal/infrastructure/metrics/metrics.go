// Package metrics holds the process-wide Prometheus collectors of the posting core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Idempotency gate metrics
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestatement_gate_decisions_total",
			Help: "Admit decisions taken by the idempotency gate",
		},
		[]string{"job_type", "result"},
	)

	GateCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestatement_gate_cache_hits_total",
			Help: "Deliveries skipped by the succeeded-job cache before touching the database",
		},
		[]string{"job_type"},
	)

	HandlerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestatement_handler_failures_total",
			Help: "Handler invocations that returned an error",
		},
		[]string{"job_type"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livestatement_handler_duration_seconds",
			Help:    "Duration of admitted handler invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job_type"},
	)

	// Outbox metrics
	OutboxDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestatement_outbox_dispatched_total",
			Help: "Outbox entries dispatched, by outcome",
		},
		[]string{"event_type", "outcome"},
	)

	// JetStream consumer metrics
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestatement_deliveries_total",
			Help: "Messages received from JetStream, by ack outcome",
		},
		[]string{"event_type", "outcome"},
	)

	// Receipt pipeline metrics
	ReceiptDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestatement_receipt_decisions_total",
			Help: "Extraction decisions by outcome and hold reason",
		},
		[]string{"outcome", "reason"},
	)

	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livestatement_extraction_duration_seconds",
			Help:    "Duration of extractor calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Ledger metrics
	LedgerEntriesPostedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestatement_ledger_entries_posted_total",
			Help: "Ledger entries created, by source type",
		},
		[]string{"source_type"},
	)

	LedgerGuardRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livestatement_ledger_guard_rejections_total",
			Help: "Transactions aborted because they modified or deleted ledger rows",
		},
	)

	SnapshotRecomputesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestatement_snapshot_recomputes_total",
			Help: "Snapshot recomputations by period type",
		},
		[]string{"period_type"},
	)

	// Reconciliation metrics
	ReconciliationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livestatement_reconciliation_runs_total",
			Help: "Reconciliation runs by status",
		},
		[]string{"status"},
	)
)
