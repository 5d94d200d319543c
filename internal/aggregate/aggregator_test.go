package aggregate

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/brandpulse/internal/domain"
	"github.com/pscheid92/brandpulse/internal/store/memory"
)

var testThresholds = domain.Thresholds{Positive: 0.2, Negative: -0.2}

func newTestAggregator() (*Aggregator, *memory.Store) {
	store := memory.NewStore()
	return New(store, store, testThresholds, 24*time.Hour), store
}

func scoredItem(entity, source, externalID string, score float64, createdAt time.Time) domain.ScoredItem {
	return domain.ScoredItem{
		RawItem: domain.RawItem{
			SourceID:   source,
			ExternalID: externalID,
			Text:       "text for " + externalID,
			CreatedAt:  createdAt,
		},
		EntityQuery:    entity,
		Fingerprint:    domain.Fingerprint(source + ":" + externalID),
		SentimentScore: score,
		Confidence:     0.9,
		ModelVersion:   "lexicon-en-v1",
	}
}

func TestFold_ExampleScenario(t *testing.T) {
	// Entity "Acme Corp", Reddit yields scores 0.6, -0.3, 0.1 on one day:
	// expect count=3, sum=0.4 and one item per band at thresholds 0.2/-0.2.
	agg, store := newTestAggregator()
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	scores := []float64{0.6, -0.3, 0.1}
	for i, score := range scores {
		item := scoredItem("Acme Corp", "reddit", string(rune('a'+i)), score, day.Add(time.Duration(i)*time.Hour))
		require.NoError(t, agg.Fold(ctx, item))
	}

	buckets, err := store.GetBuckets(ctx, "Acme Corp", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, buckets, 1)

	b := buckets[0]
	assert.Equal(t, "reddit", b.SourceID)
	assert.Equal(t, day.Truncate(24*time.Hour), b.BucketStart)
	assert.Equal(t, int64(3), b.Count)
	assert.InDelta(t, 0.4, b.SumScore, 1e-9)
	assert.Equal(t, int64(1), b.PositiveCount)
	assert.Equal(t, int64(1), b.NegativeCount)
	assert.Equal(t, int64(1), b.NeutralCount)
}

func TestFold_Idempotent(t *testing.T) {
	agg, store := newTestAggregator()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	item := scoredItem("acme", "reddit", "x1", 0.5, now)
	require.NoError(t, agg.Fold(ctx, item))
	require.NoError(t, agg.Fold(ctx, item))
	require.NoError(t, agg.Fold(ctx, item))

	buckets, err := store.GetBuckets(ctx, "acme", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(1), buckets[0].Count, "refolding must not double-count")
	assert.InDelta(t, 0.5, buckets[0].SumScore, 1e-9)
}

func TestFold_NewModelVersionCountsSeparately(t *testing.T) {
	agg, store := newTestAggregator()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	item := scoredItem("acme", "reddit", "x1", 0.5, now)
	require.NoError(t, agg.Fold(ctx, item))

	rescored := item
	rescored.ModelVersion = "lexicon-en-v2"
	rescored.SentimentScore = 0.4
	require.NoError(t, agg.Fold(ctx, rescored))

	buckets, err := store.GetBuckets(ctx, "acme", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(2), buckets[0].Count, "a re-score under a new model version is a new contribution")
}

func TestFold_OrderIndependent(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	items := []domain.ScoredItem{
		scoredItem("acme", "reddit", "r1", 0.6, day.Add(1*time.Hour)),
		scoredItem("acme", "reddit", "r2", -0.3, day.Add(2*time.Hour)),
		scoredItem("acme", "news", "n1", 0.1, day.Add(3*time.Hour)),
		scoredItem("acme", "news", "n2", 0.9, day.Add(4*time.Hour)),
		scoredItem("acme", "news", "n3", -0.8, day.Add(5*time.Hour)),
	}

	fold := func(order []int) []domain.TimeBucket {
		agg, store := newTestAggregator()
		for _, i := range order {
			require.NoError(t, agg.Fold(ctx, items[i]))
		}
		buckets, err := store.GetBuckets(ctx, "acme", time.Time{}, time.Time{})
		require.NoError(t, err)
		return buckets
	}

	baseline := fold([]int{0, 1, 2, 3, 4})

	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 5; n++ {
		order := rng.Perm(len(items))
		assert.Equal(t, baseline, fold(order), "arrival order must not change aggregates")
	}
}

var errStoreDown = errors.New("store down")

// faultyBucketStore fails a configurable number of bucket writes before
// delegating to the in-memory store.
type faultyBucketStore struct {
	*memory.Store
	applyFailures   int
	replaceFailures int
}

func (f *faultyBucketStore) ApplyToBucket(ctx context.Context, key domain.BucketKey, score float64, band domain.SentimentBand) error {
	if f.applyFailures > 0 {
		f.applyFailures--
		return errStoreDown
	}
	return f.Store.ApplyToBucket(ctx, key, score, band)
}

func (f *faultyBucketStore) ReplaceBucket(ctx context.Context, bucket domain.TimeBucket) error {
	if f.replaceFailures > 0 {
		f.replaceFailures--
		return errStoreDown
	}
	return f.Store.ReplaceBucket(ctx, bucket)
}

func TestFold_BucketWriteFailureRecomputes(t *testing.T) {
	store := memory.NewStore()
	buckets := &faultyBucketStore{Store: store, applyFailures: 1}
	agg := New(store, buckets, testThresholds, 24*time.Hour)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// The incremental update fails but the rebuild folds the item in.
	item := scoredItem("acme", "reddit", "x1", 0.5, now)
	require.NoError(t, agg.Fold(ctx, item))

	got, err := store.GetBuckets(ctx, "acme", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Count)
	assert.InDelta(t, 0.5, got[0].SumScore, 1e-9)

	// Still idempotent afterwards.
	require.NoError(t, agg.Fold(ctx, item))
	got, err = store.GetBuckets(ctx, "acme", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got[0].Count)
}

func TestFold_BucketWriteFailureRollsBackItem(t *testing.T) {
	store := memory.NewStore()
	buckets := &faultyBucketStore{Store: store, applyFailures: 1, replaceFailures: 1}
	agg := New(store, buckets, testThresholds, 24*time.Hour)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	item := scoredItem("acme", "reddit", "x1", 0.5, now)
	err := agg.Fold(ctx, item)
	require.ErrorIs(t, err, errStoreDown)

	// The rollback removed the contribution record, so the item is neither
	// in a bucket nor stuck as an applied duplicate.
	got, err := store.GetBuckets(ctx, "acme", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, got)

	// Retrying once the store recovers folds the contribution for real.
	require.NoError(t, agg.Fold(ctx, item))
	got, err = store.GetBuckets(ctx, "acme", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Count)
	assert.InDelta(t, 0.5, got[0].SumScore, 1e-9)
}

func TestPerSource(t *testing.T) {
	agg, _ := newTestAggregator()
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, agg.Fold(ctx, scoredItem("acme", "reddit", "r1", 0.6, day)))
	require.NoError(t, agg.Fold(ctx, scoredItem("acme", "reddit", "r2", 0.2, day.Add(26*time.Hour))))
	require.NoError(t, agg.Fold(ctx, scoredItem("acme", "news", "n1", -0.4, day)))

	summaries, err := agg.PerSource(ctx, "acme", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "news", summaries[0].SourceID)
	assert.Equal(t, int64(1), summaries[0].Count)
	assert.InDelta(t, -0.4, summaries[0].MeanScore, 1e-9)

	assert.Equal(t, "reddit", summaries[1].SourceID)
	assert.Equal(t, int64(2), summaries[1].Count, "spans both daily buckets")
	assert.InDelta(t, 0.4, summaries[1].MeanScore, 1e-9)
}

func TestOverall_WeightedByItemCount(t *testing.T) {
	agg, _ := newTestAggregator()
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// reddit: 3 items mean 0.5; news: 1 item mean -0.3.
	require.NoError(t, agg.Fold(ctx, scoredItem("acme", "reddit", "r1", 0.5, day)))
	require.NoError(t, agg.Fold(ctx, scoredItem("acme", "reddit", "r2", 0.5, day)))
	require.NoError(t, agg.Fold(ctx, scoredItem("acme", "reddit", "r3", 0.5, day)))
	require.NoError(t, agg.Fold(ctx, scoredItem("acme", "news", "n1", -0.3, day)))

	overall, err := agg.Overall(ctx, "acme", time.Time{}, time.Time{}, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(4), overall.Count)
	assert.InDelta(t, (0.5*3+(-0.3)*1)/4, overall.WeightedScore, 1e-9)
	assert.Equal(t, int64(3), overall.PositiveCount)
	assert.Equal(t, int64(1), overall.NegativeCount)
	assert.Equal(t, int64(2), overall.SkippedCount)
}

func TestRecompute_RestoresCountersFromItems(t *testing.T) {
	agg, store := newTestAggregator()
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, agg.Fold(ctx, scoredItem("acme", "reddit", "r1", 0.6, day.Add(time.Hour))))
	require.NoError(t, agg.Fold(ctx, scoredItem("acme", "reddit", "r2", -0.3, day.Add(2*time.Hour))))

	key := domain.BucketKey{EntityQuery: "acme", SourceID: "reddit", BucketStart: day}

	// Corrupt the derived counters, then recompute from the stored items.
	require.NoError(t, store.ReplaceBucket(ctx, domain.TimeBucket{BucketKey: key, Count: 99, SumScore: 99}))

	bucket, err := agg.Recompute(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bucket.Count)
	assert.InDelta(t, 0.3, bucket.SumScore, 1e-9)
	assert.Equal(t, int64(1), bucket.PositiveCount)
	assert.Equal(t, int64(1), bucket.NegativeCount)

	stored, err := store.GetBuckets(ctx, "acme", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, bucket, stored[0])
}
