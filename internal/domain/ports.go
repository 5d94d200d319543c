package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SourceConnector fetches raw items matching an entity query from one
// upstream source. Implementations own their rate limiting and retry state;
// a slow or throttled source must never block other connectors.
//
// Fetch streams items through emit in upstream order. If a connector cannot
// resume exactly from since, it must overlap backward rather than skip
// forward: silent gaps are not allowed.
type SourceConnector interface {
	SourceID() string
	Fetch(ctx context.Context, entityQuery string, since time.Time, limit int, emit func(RawItem) error) error
}

// Scorer converts item text into a bounded sentiment score. Scoring is a
// pure function of the text and the loaded model: for a fixed model version,
// the same normalized text always yields the same score and confidence.
type Scorer interface {
	ModelVersion() string
	Score(ctx context.Context, text string) (score, confidence float64, err error)
}

// FingerprintSet is the dedup membership set, scoped per entity query so the
// same content can count toward different analyses independently. IsNew is
// an atomic check-and-record safe for concurrent connector tasks.
type FingerprintSet interface {
	IsNew(ctx context.Context, entityQuery string, fp Fingerprint) (bool, error)
}

// ItemFilter selects ScoredItems for the reviews query. Zero values mean
// "no constraint"; set fields combine as a predicate conjunction.
type ItemFilter struct {
	EntityQuery string
	SourceID    string
	Band        SentimentBand
	DateFrom    time.Time
	DateTo      time.Time
	Limit       int
	Offset      int
}

// ItemStore persists ScoredItems keyed (entity_query, fingerprint,
// model_version). Insert of an existing key is a no-op returning false, so
// replays cannot create duplicate rows. DeleteItem is the aggregator's
// rollback: it removes the contribution record so a failed fold can be
// retried instead of being rejected as already applied.
type ItemStore interface {
	InsertItem(ctx context.Context, item ScoredItem) (inserted bool, err error)
	DeleteItem(ctx context.Context, entityQuery string, fp Fingerprint, modelVersion string) error
	ListItems(ctx context.Context, filter ItemFilter, thresholds Thresholds) ([]ScoredItem, error)
	ListItemsForBucket(ctx context.Context, key BucketKey, width time.Duration) ([]ScoredItem, error)
}

// BucketStore persists TimeBuckets with per-key atomic updates. Apply folds
// a single contribution into the bucket identified by key; conflicting
// concurrent writers must be serialized per key, never behind one global
// lock.
type BucketStore interface {
	ApplyToBucket(ctx context.Context, key BucketKey, score float64, band SentimentBand) error
	GetBuckets(ctx context.Context, entityQuery string, from, to time.Time) ([]TimeBucket, error)
	ReplaceBucket(ctx context.Context, bucket TimeBucket) error
}

// RunStore persists AnalysisRuns. UpdateRun must refuse to mutate a run
// that already reached a terminal status.
type RunStore interface {
	CreateRun(ctx context.Context, run AnalysisRun) error
	GetRun(ctx context.Context, id uuid.UUID) (AnalysisRun, error)
	UpdateRun(ctx context.Context, run AnalysisRun) error
}
