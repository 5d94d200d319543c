package domain

import "time"

// BucketKey identifies one TimeBucket: aggregates for one source of one
// entity query within one fixed-width interval.
type BucketKey struct {
	EntityQuery string    `json:"entity_query"`
	SourceID    string    `json:"source_id"`
	BucketStart time.Time `json:"bucket_start"`
}

// TimeBucket owns the aggregate counters for one bucket key. It is derived
// state: its counters must always equal the fold of all ScoredItems mapping
// to it, so it can be recomputed after late or corrected data.
type TimeBucket struct {
	BucketKey

	Count         int64   `json:"count"`
	SumScore      float64 `json:"sum_score"`
	PositiveCount int64   `json:"positive_count"`
	NegativeCount int64   `json:"negative_count"`
	NeutralCount  int64   `json:"neutral_count"`
}

// MeanScore returns the average sentiment of the bucket, 0 when empty.
func (b *TimeBucket) MeanScore() float64 {
	if b.Count == 0 {
		return 0
	}
	return b.SumScore / float64(b.Count)
}

// Add folds one scored item's contribution into the counters.
func (b *TimeBucket) Add(score float64, band SentimentBand) {
	b.Count++
	b.SumScore += score
	switch band {
	case BandPositive:
		b.PositiveCount++
	case BandNegative:
		b.NegativeCount++
	default:
		b.NeutralCount++
	}
}

// SourceSummary is the per-source rollup returned by the analytics API.
type SourceSummary struct {
	SourceID      string  `json:"source_id"`
	Count         int64   `json:"count"`
	MeanScore     float64 `json:"mean_score"`
	PositiveCount int64   `json:"positive_count"`
	NegativeCount int64   `json:"negative_count"`
	NeutralCount  int64   `json:"neutral_count"`
}

// OverallSummary is the cross-source rollup: an item-count-weighted mean
// over the per-source summaries, recomputed on demand from TimeBuckets.
type OverallSummary struct {
	Count         int64   `json:"count"`
	WeightedScore float64 `json:"weighted_score"`
	PositiveCount int64   `json:"positive_count"`
	NegativeCount int64   `json:"negative_count"`
	NeutralCount  int64   `json:"neutral_count"`
	SkippedCount  int64   `json:"skipped_count"`
}
