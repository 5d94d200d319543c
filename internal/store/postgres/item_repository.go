package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/brandpulse/internal/domain"
)

const itemColumns = `entity_query, fingerprint, model_version, source_id, external_id,
	author, item_text, created_at, url, sentiment_score, confidence, mention_start, mention_end`

// ItemRepo implements domain.ItemStore backed by PostgreSQL.
type ItemRepo struct {
	pool *pgxpool.Pool
}

// NewItemRepo creates an ItemRepo from the shared pool.
func NewItemRepo(pool *pgxpool.Pool) *ItemRepo {
	return &ItemRepo{pool: pool}
}

// InsertItem inserts a scored item, reporting false when the
// (entity, fingerprint, model_version) key already exists. The conflict
// no-op is what makes the aggregator's fold idempotent across replays.
func (r *ItemRepo) InsertItem(ctx context.Context, item domain.ScoredItem) (bool, error) {
	var mentionStart, mentionEnd *int
	if item.Mention != nil {
		mentionStart, mentionEnd = &item.Mention.Start, &item.Mention.End
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO scored_items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (entity_query, fingerprint, model_version) DO NOTHING`,
		item.EntityQuery, string(item.Fingerprint), item.ModelVersion,
		item.SourceID, item.ExternalID, item.Author, item.Text,
		item.CreatedAt, item.URL, item.SentimentScore, item.Confidence,
		mentionStart, mentionEnd,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert scored item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteItem removes one contribution record. Deleting a missing key is not
// an error; the caller only cares that the key is gone.
func (r *ItemRepo) DeleteItem(ctx context.Context, entityQuery string, fp domain.Fingerprint, modelVersion string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM scored_items
		WHERE entity_query = $1 AND fingerprint = $2 AND model_version = $3`,
		entityQuery, string(fp), modelVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to delete scored item: %w", err)
	}
	return nil
}

// ListItems returns scored items matching the filter, newest first.
func (r *ItemRepo) ListItems(ctx context.Context, filter domain.ItemFilter, thresholds domain.Thresholds) ([]domain.ScoredItem, error) {
	query := `SELECT ` + itemColumns + ` FROM scored_items WHERE TRUE`
	args := make([]any, 0, 8)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.EntityQuery != "" {
		query += ` AND entity_query = ` + arg(filter.EntityQuery)
	}
	if filter.SourceID != "" {
		query += ` AND source_id = ` + arg(filter.SourceID)
	}
	switch filter.Band {
	case domain.BandPositive:
		query += ` AND sentiment_score >= ` + arg(thresholds.Positive)
	case domain.BandNegative:
		query += ` AND sentiment_score <= ` + arg(thresholds.Negative)
	case domain.BandNeutral:
		query += ` AND sentiment_score > ` + arg(thresholds.Negative) +
			` AND sentiment_score < ` + arg(thresholds.Positive)
	}
	if !filter.DateFrom.IsZero() {
		query += ` AND created_at >= ` + arg(filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		query += ` AND created_at < ` + arg(filter.DateTo)
	}

	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scored items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ListItemsForBucket returns the items that fold into one bucket.
func (r *ItemRepo) ListItemsForBucket(ctx context.Context, key domain.BucketKey, width time.Duration) ([]domain.ScoredItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+` FROM scored_items
		WHERE entity_query = $1 AND source_id = $2
		  AND created_at >= $3 AND created_at < $4
		ORDER BY created_at`,
		key.EntityQuery, key.SourceID, key.BucketStart, key.BucketStart.Add(width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bucket items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

func scanItems(rows pgx.Rows) ([]domain.ScoredItem, error) {
	items := make([]domain.ScoredItem, 0)
	for rows.Next() {
		var (
			item                     domain.ScoredItem
			fingerprint              string
			mentionStart, mentionEnd *int
		)
		err := rows.Scan(
			&item.EntityQuery, &fingerprint, &item.ModelVersion,
			&item.SourceID, &item.ExternalID, &item.Author, &item.Text,
			&item.CreatedAt, &item.URL, &item.SentimentScore, &item.Confidence,
			&mentionStart, &mentionEnd,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scored item: %w", err)
		}
		item.Fingerprint = domain.Fingerprint(fingerprint)
		if mentionStart != nil && mentionEnd != nil {
			item.Mention = &domain.MentionSpan{Start: *mentionStart, End: *mentionEnd}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scored items: %w", err)
	}
	return items, nil
}
