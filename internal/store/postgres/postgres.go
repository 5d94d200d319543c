// Package postgres implements the durable pipeline stores on PostgreSQL via
// pgx. TimeBucket updates are per-key atomic upserts, so concurrent folds
// into different buckets never contend on a shared lock.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool and verifies the connection.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConns = 25
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations applies the idempotent schema statements.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS scored_items (
			entity_query TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			model_version TEXT NOT NULL,
			source_id TEXT NOT NULL,
			external_id TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			item_text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			sentiment_score DOUBLE PRECISION NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			mention_start INTEGER,
			mention_end INTEGER,
			PRIMARY KEY (entity_query, fingerprint, model_version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scored_items_entity_created
			ON scored_items (entity_query, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_scored_items_entity_source
			ON scored_items (entity_query, source_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS time_buckets (
			entity_query TEXT NOT NULL,
			source_id TEXT NOT NULL,
			bucket_start TIMESTAMPTZ NOT NULL,
			item_count BIGINT NOT NULL DEFAULT 0,
			sum_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			positive_count BIGINT NOT NULL DEFAULT 0,
			negative_count BIGINT NOT NULL DEFAULT 0,
			neutral_count BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (entity_query, source_id, bucket_start)
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_runs (
			id UUID PRIMARY KEY,
			entity_query TEXT NOT NULL,
			requested_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			sources_requested TEXT[] NOT NULL DEFAULT '{}',
			sources_completed TEXT[] NOT NULL DEFAULT '{}',
			sources_failed TEXT[] NOT NULL DEFAULT '{}',
			skipped_count BIGINT NOT NULL DEFAULT 0,
			finished_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_runs_entity
			ON analysis_runs (entity_query, requested_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	slog.Info("Database migrations completed")
	return nil
}
