package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/brandpulse/internal/domain"
	"github.com/pscheid92/brandpulse/internal/metrics"
)

// conflictRetries bounds local retries of serialization races. The fold is
// re-applied against the latest row state; the caller never sees the race.
const conflictRetries = 3

// BucketRepo implements domain.BucketStore backed by PostgreSQL.
type BucketRepo struct {
	pool *pgxpool.Pool
}

// NewBucketRepo creates a BucketRepo from the shared pool.
func NewBucketRepo(pool *pgxpool.Pool) *BucketRepo {
	return &BucketRepo{pool: pool}
}

// ApplyToBucket folds one contribution into its bucket row. The upsert
// arithmetic runs inside the database, so the update is atomic per key and
// concurrent writers on different buckets never serialize on each other.
func (r *BucketRepo) ApplyToBucket(ctx context.Context, key domain.BucketKey, score float64, band domain.SentimentBand) error {
	var positive, negative, neutral int64
	switch band {
	case domain.BandPositive:
		positive = 1
	case domain.BandNegative:
		negative = 1
	default:
		neutral = 1
	}

	var lastErr error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO time_buckets
				(entity_query, source_id, bucket_start, item_count, sum_score,
				 positive_count, negative_count, neutral_count)
			VALUES ($1, $2, $3, 1, $4, $5, $6, $7)
			ON CONFLICT (entity_query, source_id, bucket_start) DO UPDATE SET
				item_count = time_buckets.item_count + 1,
				sum_score = time_buckets.sum_score + EXCLUDED.sum_score,
				positive_count = time_buckets.positive_count + EXCLUDED.positive_count,
				negative_count = time_buckets.negative_count + EXCLUDED.negative_count,
				neutral_count = time_buckets.neutral_count + EXCLUDED.neutral_count`,
			key.EntityQuery, key.SourceID, key.BucketStart,
			score, positive, negative, neutral,
		)
		if err == nil {
			return nil
		}
		if !isWriteConflict(err) {
			return fmt.Errorf("failed to apply bucket update: %w", err)
		}
		metrics.StoreWriteConflicts.Inc()
		lastErr = err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreWriteConflict, lastErr)
}

// isWriteConflict recognizes serialization and deadlock SQLSTATEs.
func isWriteConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// GetBuckets returns an entity's buckets within [from, to], all when both
// bounds are zero.
func (r *BucketRepo) GetBuckets(ctx context.Context, entityQuery string, from, to time.Time) ([]domain.TimeBucket, error) {
	query := `
		SELECT entity_query, source_id, bucket_start, item_count, sum_score,
		       positive_count, negative_count, neutral_count
		FROM time_buckets
		WHERE entity_query = $1`
	args := []any{entityQuery}

	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND bucket_start >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND bucket_start <= $%d", len(args))
	}
	query += ` ORDER BY source_id, bucket_start`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query buckets: %w", err)
	}
	defer rows.Close()

	buckets := make([]domain.TimeBucket, 0)
	for rows.Next() {
		var b domain.TimeBucket
		err := rows.Scan(
			&b.EntityQuery, &b.SourceID, &b.BucketStart,
			&b.Count, &b.SumScore,
			&b.PositiveCount, &b.NegativeCount, &b.NeutralCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read buckets: %w", err)
	}
	return buckets, nil
}

// ReplaceBucket overwrites a bucket's counters with recomputed values.
func (r *BucketRepo) ReplaceBucket(ctx context.Context, bucket domain.TimeBucket) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO time_buckets
			(entity_query, source_id, bucket_start, item_count, sum_score,
			 positive_count, negative_count, neutral_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (entity_query, source_id, bucket_start) DO UPDATE SET
			item_count = EXCLUDED.item_count,
			sum_score = EXCLUDED.sum_score,
			positive_count = EXCLUDED.positive_count,
			negative_count = EXCLUDED.negative_count,
			neutral_count = EXCLUDED.neutral_count`,
		bucket.EntityQuery, bucket.SourceID, bucket.BucketStart,
		bucket.Count, bucket.SumScore,
		bucket.PositiveCount, bucket.NegativeCount, bucket.NeutralCount,
	)
	if err != nil {
		return fmt.Errorf("failed to replace bucket: %w", err)
	}
	return nil
}
