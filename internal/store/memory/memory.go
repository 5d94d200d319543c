// Package memory implements the pipeline stores in process memory. It is
// the twin of the Postgres implementation used by tests and redis/pg-less
// development runs, with the same idempotency and per-bucket locking
// semantics.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pscheid92/brandpulse/internal/domain"
)

type itemKey struct {
	entityQuery  string
	fingerprint  domain.Fingerprint
	modelVersion string
}

// bucketEntry carries its own lock so concurrent folds into different
// buckets never serialize on one global mutex.
type bucketEntry struct {
	mu     sync.Mutex
	bucket domain.TimeBucket
}

// Store implements domain.ItemStore, domain.BucketStore and domain.RunStore.
type Store struct {
	mu      sync.RWMutex
	items   map[itemKey]domain.ScoredItem
	buckets map[domain.BucketKey]*bucketEntry
	runs    map[uuid.UUID]domain.AnalysisRun
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		items:   make(map[itemKey]domain.ScoredItem),
		buckets: make(map[domain.BucketKey]*bucketEntry),
		runs:    make(map[uuid.UUID]domain.AnalysisRun),
	}
}

// InsertItem implements domain.ItemStore.
func (s *Store) InsertItem(_ context.Context, item domain.ScoredItem) (bool, error) {
	key := itemKey{item.EntityQuery, item.Fingerprint, item.ModelVersion}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; exists {
		return false, nil
	}
	s.items[key] = item
	return true, nil
}

// DeleteItem implements domain.ItemStore.
func (s *Store) DeleteItem(_ context.Context, entityQuery string, fp domain.Fingerprint, modelVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, itemKey{entityQuery, fp, modelVersion})
	return nil
}

// ListItems implements domain.ItemStore.
func (s *Store) ListItems(_ context.Context, filter domain.ItemFilter, thresholds domain.Thresholds) ([]domain.ScoredItem, error) {
	s.mu.RLock()
	matched := make([]domain.ScoredItem, 0)
	for _, item := range s.items {
		if !matches(item, filter, thresholds) {
			continue
		}
		matched = append(matched, item)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []domain.ScoredItem{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func matches(item domain.ScoredItem, f domain.ItemFilter, thresholds domain.Thresholds) bool {
	if f.EntityQuery != "" && item.EntityQuery != f.EntityQuery {
		return false
	}
	if f.SourceID != "" && item.SourceID != f.SourceID {
		return false
	}
	if f.Band != "" && thresholds.Band(item.SentimentScore) != f.Band {
		return false
	}
	if !f.DateFrom.IsZero() && item.CreatedAt.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && !item.CreatedAt.Before(f.DateTo) {
		return false
	}
	return true
}

// ListItemsForBucket implements domain.ItemStore.
func (s *Store) ListItemsForBucket(_ context.Context, key domain.BucketKey, width time.Duration) ([]domain.ScoredItem, error) {
	end := key.BucketStart.Add(width)

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.ScoredItem, 0)
	for _, item := range s.items {
		if item.EntityQuery != key.EntityQuery || item.SourceID != key.SourceID {
			continue
		}
		if item.CreatedAt.Before(key.BucketStart) || !item.CreatedAt.Before(end) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Store) entry(key domain.BucketKey) *bucketEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.buckets[key]
	if !ok {
		e = &bucketEntry{bucket: domain.TimeBucket{BucketKey: key}}
		s.buckets[key] = e
	}
	return e
}

// ApplyToBucket implements domain.BucketStore.
func (s *Store) ApplyToBucket(_ context.Context, key domain.BucketKey, score float64, band domain.SentimentBand) error {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bucket.Add(score, band)
	return nil
}

// GetBuckets implements domain.BucketStore.
func (s *Store) GetBuckets(_ context.Context, entityQuery string, from, to time.Time) ([]domain.TimeBucket, error) {
	s.mu.RLock()
	entries := make([]*bucketEntry, 0)
	for key, e := range s.buckets {
		if key.EntityQuery != entityQuery {
			continue
		}
		if !from.IsZero() && key.BucketStart.Before(from) {
			continue
		}
		if !to.IsZero() && key.BucketStart.After(to) {
			continue
		}
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	buckets := make([]domain.TimeBucket, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		buckets = append(buckets, e.bucket)
		e.mu.Unlock()
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].SourceID != buckets[j].SourceID {
			return buckets[i].SourceID < buckets[j].SourceID
		}
		return buckets[i].BucketStart.Before(buckets[j].BucketStart)
	})
	return buckets, nil
}

// ReplaceBucket implements domain.BucketStore.
func (s *Store) ReplaceBucket(_ context.Context, bucket domain.TimeBucket) error {
	e := s.entry(bucket.BucketKey)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bucket = bucket
	return nil
}

// CreateRun implements domain.RunStore.
func (s *Store) CreateRun(_ context.Context, run domain.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun implements domain.RunStore.
func (s *Store) GetRun(_ context.Context, id uuid.UUID) (domain.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return domain.AnalysisRun{}, domain.ErrRunNotFound
	}
	return cloneRun(run), nil
}

// UpdateRun implements domain.RunStore. Terminal runs refuse mutation.
func (s *Store) UpdateRun(_ context.Context, run domain.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.runs[run.ID]
	if !ok {
		return domain.ErrRunNotFound
	}
	if existing.Status.Terminal() {
		return domain.ErrRunTerminal
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func cloneRun(run domain.AnalysisRun) domain.AnalysisRun {
	run.SourcesRequested = append([]string(nil), run.SourcesRequested...)
	run.SourcesCompleted = append([]string(nil), run.SourcesCompleted...)
	run.SourcesFailed = append([]string(nil), run.SourcesFailed...)
	return run
}
