// Package metrics defines the Prometheus instruments of the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connector metrics
var (
	// ItemsFetched counts raw items emitted per source.
	ItemsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_items_fetched_total",
			Help: "Raw items emitted by source connectors",
		},
		[]string{"source"},
	)

	// SourceFailures counts connectors that exhausted their retries.
	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_source_failures_total",
			Help: "Connector fetches that ended in SourceUnavailable",
		},
		[]string{"source"},
	)

	// SourceRetries counts retried upstream requests per source.
	SourceRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_source_retries_total",
			Help: "Upstream requests retried after transient failures",
		},
		[]string{"source"},
	)
)

// Pipeline stage metrics
var (
	// DuplicatesRejected counts items filtered by the deduplicator.
	DuplicatesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_duplicates_rejected_total",
			Help: "Items rejected as duplicate content",
		},
		[]string{"source"},
	)

	// MentionsRejected counts items without a confirmed entity mention.
	MentionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_mentions_rejected_total",
			Help: "Items rejected by the mention extractor",
		},
		[]string{"source"},
	)

	// ScoringFailures counts items the scorer skipped.
	ScoringFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_scoring_failures_total",
			Help: "Items excluded from aggregates by scoring failures",
		},
		[]string{"source"},
	)

	// FoldsApplied counts contributions folded into TimeBuckets.
	FoldsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_folds_applied_total",
			Help: "Scored items folded into time buckets",
		},
	)

	// FoldsRejected counts idempotency rejections of repeated folds.
	FoldsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_folds_rejected_total",
			Help: "Fold attempts rejected as already applied",
		},
	)

	// StoreWriteConflicts counts bucket update races retried locally.
	StoreWriteConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_store_write_conflicts_total",
			Help: "TimeBucket write conflicts retried",
		},
	)
)

// Run metrics
var (
	// RunsTotal counts finished runs by terminal status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Analysis runs by terminal status",
		},
		[]string{"status"},
	)

	// RunDuration observes wall time of finished runs.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// RunsActive tracks currently executing runs.
	RunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_runs_active",
			Help: "Analysis runs currently in flight",
		},
	)
)
