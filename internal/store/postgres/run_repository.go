package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/brandpulse/internal/domain"
)

// RunRepo implements domain.RunStore backed by PostgreSQL.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo creates a RunRepo from the shared pool.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// CreateRun inserts a new analysis run record.
func (r *RunRepo) CreateRun(ctx context.Context, run domain.AnalysisRun) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO analysis_runs
			(id, entity_query, requested_at, status,
			 sources_requested, sources_completed, sources_failed,
			 skipped_count, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.EntityQuery, run.RequestedAt, string(run.Status),
		run.SourcesRequested, run.SourcesCompleted, run.SourcesFailed,
		run.SkippedCount, nullableTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetRun loads a run by ID.
func (r *RunRepo) GetRun(ctx context.Context, id uuid.UUID) (domain.AnalysisRun, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, entity_query, requested_at, status,
		       sources_requested, sources_completed, sources_failed,
		       skipped_count, finished_at
		FROM analysis_runs WHERE id = $1`, id)

	var (
		run        domain.AnalysisRun
		status     string
		finishedAt *time.Time
	)
	err := row.Scan(
		&run.ID, &run.EntityQuery, &run.RequestedAt, &status,
		&run.SourcesRequested, &run.SourcesCompleted, &run.SourcesFailed,
		&run.SkippedCount, &finishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnalysisRun{}, domain.ErrRunNotFound
	}
	if err != nil {
		return domain.AnalysisRun{}, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	if finishedAt != nil {
		run.FinishedAt = *finishedAt
	}
	return run, nil
}

// UpdateRun persists run mutations. A run that already reached a terminal
// status is immutable; updating it returns domain.ErrRunTerminal.
func (r *RunRepo) UpdateRun(ctx context.Context, run domain.AnalysisRun) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE analysis_runs SET
			status = $2,
			sources_completed = $3,
			sources_failed = $4,
			skipped_count = $5,
			finished_at = $6
		WHERE id = $1
		  AND status NOT IN ('completed', 'completed_partial', 'failed', 'cancelled')`,
		run.ID, string(run.Status),
		run.SourcesCompleted, run.SourcesFailed,
		run.SkippedCount, nullableTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetRun(ctx, run.ID); err != nil {
			return err
		}
		return domain.ErrRunTerminal
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
