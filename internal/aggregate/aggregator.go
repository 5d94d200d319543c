// Package aggregate folds scored items into per-source TimeBuckets and
// derives the per-source and cross-source rollups served by the API.
//
// The fold is idempotent and commutative: contributions are keyed by
// (entity, fingerprint, model version), so replays are rejected and arrival
// order across sources does not matter.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pscheid92/brandpulse/internal/domain"
	"github.com/pscheid92/brandpulse/internal/metrics"
)

// Aggregator owns all TimeBucket mutation. Buckets are derived state and
// can always be recomputed from the stored items mapping to them.
type Aggregator struct {
	items      domain.ItemStore
	buckets    domain.BucketStore
	thresholds domain.Thresholds
	width      time.Duration
}

// New creates an Aggregator with the given banding thresholds and bucket
// width (e.g. 24h for daily buckets).
func New(items domain.ItemStore, buckets domain.BucketStore, thresholds domain.Thresholds, width time.Duration) *Aggregator {
	return &Aggregator{items: items, buckets: buckets, thresholds: thresholds, width: width}
}

// Thresholds returns the configured banding thresholds.
func (a *Aggregator) Thresholds() domain.Thresholds {
	return a.thresholds
}

// BucketStart maps a timestamp to the start of its bucket.
func (a *Aggregator) BucketStart(t time.Time) time.Time {
	return t.UTC().Truncate(a.width)
}

// Fold applies one scored item to its TimeBucket. Folding the same item
// (same entity, fingerprint and model version) again is a no-op: the item
// insert doubles as the applied-contribution record.
func (a *Aggregator) Fold(ctx context.Context, item domain.ScoredItem) error {
	inserted, err := a.items.InsertItem(ctx, item)
	if err != nil {
		return fmt.Errorf("failed to record scored item: %w", err)
	}
	if !inserted {
		metrics.FoldsRejected.Inc()
		slog.Debug("Fold rejected, contribution already applied",
			"entity", item.EntityQuery,
			"fingerprint", string(item.Fingerprint),
			"model_version", item.ModelVersion,
		)
		return nil
	}

	key := domain.BucketKey{
		EntityQuery: item.EntityQuery,
		SourceID:    item.SourceID,
		BucketStart: a.BucketStart(item.CreatedAt),
	}
	band := a.thresholds.Band(item.SentimentScore)

	if err := a.buckets.ApplyToBucket(ctx, key, item.SentimentScore, band); err != nil {
		// The contribution record is already persisted. Leaving it there
		// would reject every retry of this fold as a duplicate while the
		// bucket never sees the contribution. Rebuild the bucket from the
		// stored items first; that folds the new item in without the
		// incremental update.
		if _, recErr := a.Recompute(ctx, key); recErr == nil {
			metrics.FoldsApplied.Inc()
			return nil
		}
		// Roll the record back so a later fold of the same item starts over.
		if delErr := a.items.DeleteItem(ctx, item.EntityQuery, item.Fingerprint, item.ModelVersion); delErr != nil {
			return fmt.Errorf("failed to fold into bucket: %w; item rollback failed: %w", err, delErr)
		}
		return fmt.Errorf("failed to fold into bucket: %w", err)
	}
	metrics.FoldsApplied.Inc()
	return nil
}

// Buckets returns an entity's raw TimeBuckets in the given time range.
func (a *Aggregator) Buckets(ctx context.Context, entityQuery string, from, to time.Time) ([]domain.TimeBucket, error) {
	return a.buckets.GetBuckets(ctx, entityQuery, from, to)
}

// PerSource sums an entity's TimeBuckets into one summary per source.
func (a *Aggregator) PerSource(ctx context.Context, entityQuery string, from, to time.Time) ([]domain.SourceSummary, error) {
	buckets, err := a.buckets.GetBuckets(ctx, entityQuery, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load buckets: %w", err)
	}

	bySource := make(map[string]*domain.SourceSummary)
	for _, b := range buckets {
		s, ok := bySource[b.SourceID]
		if !ok {
			s = &domain.SourceSummary{SourceID: b.SourceID}
			bySource[b.SourceID] = s
		}
		s.Count += b.Count
		s.MeanScore += b.SumScore // running sum, divided below
		s.PositiveCount += b.PositiveCount
		s.NegativeCount += b.NegativeCount
		s.NeutralCount += b.NeutralCount
	}

	summaries := make([]domain.SourceSummary, 0, len(bySource))
	for _, s := range bySource {
		if s.Count > 0 {
			s.MeanScore /= float64(s.Count)
		}
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].SourceID < summaries[j].SourceID })
	return summaries, nil
}

// Overall computes the cross-source rollup as an item-count-weighted mean
// over the per-source summaries. It is recomputed from TimeBuckets on every
// call rather than maintained incrementally, so a corrected bucket is
// reflected exactly.
func (a *Aggregator) Overall(ctx context.Context, entityQuery string, from, to time.Time, skipped int64) (domain.OverallSummary, error) {
	perSource, err := a.PerSource(ctx, entityQuery, from, to)
	if err != nil {
		return domain.OverallSummary{}, err
	}

	overall := domain.OverallSummary{SkippedCount: skipped}
	var weightedSum float64
	for _, s := range perSource {
		overall.Count += s.Count
		overall.PositiveCount += s.PositiveCount
		overall.NegativeCount += s.NegativeCount
		overall.NeutralCount += s.NeutralCount
		weightedSum += s.MeanScore * float64(s.Count)
	}
	if overall.Count > 0 {
		overall.WeightedScore = weightedSum / float64(overall.Count)
	}
	return overall, nil
}

// Recompute rebuilds one bucket from the stored items that map to it and
// replaces the persisted counters. This is the recovery path after late or
// corrected data.
func (a *Aggregator) Recompute(ctx context.Context, key domain.BucketKey) (domain.TimeBucket, error) {
	items, err := a.items.ListItemsForBucket(ctx, key, a.width)
	if err != nil {
		return domain.TimeBucket{}, fmt.Errorf("failed to load bucket items: %w", err)
	}

	bucket := domain.TimeBucket{BucketKey: key}
	for _, item := range items {
		bucket.Add(item.SentimentScore, a.thresholds.Band(item.SentimentScore))
	}

	if err := a.buckets.ReplaceBucket(ctx, bucket); err != nil {
		return domain.TimeBucket{}, fmt.Errorf("failed to replace bucket: %w", err)
	}
	return bucket, nil
}
