package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of an AnalysisRun.
type RunStatus string

const (
	RunPending     RunStatus = "pending"
	RunFetching    RunStatus = "fetching"
	RunScoring     RunStatus = "scoring"
	RunAggregating RunStatus = "aggregating"

	RunCompleted        RunStatus = "completed"
	RunCompletedPartial RunStatus = "completed_partial"
	RunFailed           RunStatus = "failed"
	RunCancelled        RunStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal runs never mutate;
// a fresh query creates a new run instead of reopening an old one.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunCompletedPartial, RunFailed, RunCancelled:
		return true
	}
	return false
}

// AnalysisRun records one end-to-end pipeline execution for one entity
// query. Only the orchestrator mutates it, and only until a terminal state.
type AnalysisRun struct {
	ID               uuid.UUID `json:"run_id"`
	EntityQuery      string    `json:"entity_query"`
	RequestedAt      time.Time `json:"requested_at"`
	Status           RunStatus `json:"status"`
	SourcesRequested []string  `json:"sources_requested"`
	SourcesCompleted []string  `json:"sources_completed"`
	SourcesFailed    []string  `json:"sources_failed"`
	SkippedCount     int64     `json:"skipped_count"`
	FinishedAt       time.Time `json:"finished_at,omitzero"`
}
