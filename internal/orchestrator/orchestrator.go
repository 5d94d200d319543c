// Package orchestrator coordinates analysis runs: it fans the entity query
// out to all requested source connectors, streams their items through
// dedup, mention extraction and scoring, folds the results into the
// aggregate store, and drives the run's status state machine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/pscheid92/brandpulse/internal/aggregate"
	"github.com/pscheid92/brandpulse/internal/connector"
	"github.com/pscheid92/brandpulse/internal/domain"
	"github.com/pscheid92/brandpulse/internal/fingerprint"
	"github.com/pscheid92/brandpulse/internal/mention"
	"github.com/pscheid92/brandpulse/internal/metrics"
)

// Orchestrator owns the run lifecycle. One goroutine per run, one per
// connector inside the run, and a bounded pool for CPU-bound scoring.
type Orchestrator struct {
	registry   *connector.Registry
	dedup      domain.FingerprintSet
	extractor  *mention.Extractor
	scorer     domain.Scorer
	aggregator *aggregate.Aggregator
	runs       domain.RunStore
	clock      clockwork.Clock

	fetchLimit int
	workers    int

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelFunc
	wg     sync.WaitGroup
}

// New wires an Orchestrator.
func New(
	registry *connector.Registry,
	dedup domain.FingerprintSet,
	extractor *mention.Extractor,
	scorer domain.Scorer,
	aggregator *aggregate.Aggregator,
	runs domain.RunStore,
	clock clockwork.Clock,
	fetchLimit, workers int,
) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		registry:   registry,
		dedup:      dedup,
		extractor:  extractor,
		scorer:     scorer,
		aggregator: aggregator,
		runs:       runs,
		clock:      clock,
		fetchLimit: fetchLimit,
		workers:    workers,
		active:     make(map[uuid.UUID]context.CancelFunc),
	}
}

// StartRun creates and persists a new AnalysisRun and launches its pipeline
// in the background. The passed context only covers run creation; the run
// itself lives until it finishes or is cancelled via Cancel/Stop.
func (o *Orchestrator) StartRun(ctx context.Context, entityQuery string, sources []string, since time.Time) (domain.AnalysisRun, error) {
	connectors, err := o.registry.Select(sources)
	if err != nil {
		return domain.AnalysisRun{}, err
	}

	requested := make([]string, 0, len(connectors))
	for _, c := range connectors {
		requested = append(requested, c.SourceID())
	}

	run := domain.AnalysisRun{
		ID:               uuid.New(),
		EntityQuery:      entityQuery,
		RequestedAt:      o.clock.Now().UTC(),
		Status:           domain.RunPending,
		SourcesRequested: requested,
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return domain.AnalysisRun{}, fmt.Errorf("failed to create run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.active[run.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	metrics.RunsActive.Inc()
	go func() {
		defer o.wg.Done()
		defer metrics.RunsActive.Dec()
		defer func() {
			o.mu.Lock()
			delete(o.active, run.ID)
			o.mu.Unlock()
			cancel()
		}()
		o.execute(runCtx, run, connectors, since)
	}()

	return run, nil
}

// Cancel cancels a running analysis. It reports false when the run is not
// in flight (unknown or already terminal).
func (o *Orchestrator) Cancel(id uuid.UUID) bool {
	o.mu.Lock()
	cancel, ok := o.active[id]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Stop cancels all in-flight runs and waits for their goroutines to settle.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	for _, cancel := range o.active {
		cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// candidate is an item that survived dedup and mention extraction and is
// waiting to be scored.
type candidate struct {
	raw domain.RawItem
	fp  domain.Fingerprint
	spn *domain.MentionSpan
}

func (o *Orchestrator) execute(ctx context.Context, run domain.AnalysisRun, connectors []domain.SourceConnector, since time.Time) {
	start := o.clock.Now()
	logger := slog.With("run_id", run.ID.String(), "entity", run.EntityQuery)
	logger.Info("Analysis run starting", "sources", run.SourcesRequested)

	run.Status = domain.RunFetching
	o.persist(ctx, &run)

	var (
		skipped     atomic.Int64
		scoringOnce sync.Once

		resultMu  sync.Mutex
		completed []string
		failed    []string
	)

	candidates := make(chan candidate, o.workers*4)

	// Scoring pool: CPU-bound, decoupled from connector concurrency. The
	// fold is idempotent and commutative, so cross-source interleaving in
	// the pool cannot change the final aggregates.
	var scorers errgroup.Group
	for i := 0; i < o.workers; i++ {
		scorers.Go(func() error {
			for cand := range candidates {
				if ctx.Err() != nil {
					continue // drain without folding
				}
				o.scoreAndFold(ctx, run, cand, &skipped, logger)
			}
			return nil
		})
	}

	// One task per connector: a throttled or failing source never blocks
	// the others, and its failure is absorbed into run metadata.
	var fetchers sync.WaitGroup
	for _, conn := range connectors {
		fetchers.Add(1)
		go func(conn domain.SourceConnector) {
			defer fetchers.Done()
			err := o.fetchSource(ctx, run, conn, since, candidates, &scoringOnce)

			resultMu.Lock()
			defer resultMu.Unlock()
			switch {
			case err == nil:
				completed = append(completed, conn.SourceID())
			case errors.Is(err, context.Canceled):
				// cancellation is not a source failure
			default:
				metrics.SourceFailures.WithLabelValues(conn.SourceID()).Inc()
				logger.Warn("Source failed", "source", conn.SourceID(), "error", err)
				failed = append(failed, conn.SourceID())
			}
		}(conn)
	}

	fetchers.Wait()
	close(candidates)
	_ = scorers.Wait()

	run.SourcesCompleted = completed
	run.SourcesFailed = failed
	run.SkippedCount = skipped.Load()

	if ctx.Err() == nil {
		run.Status = domain.RunAggregating
		o.persist(ctx, &run)
	}

	run.Status = o.terminalStatus(ctx, len(completed), len(failed))
	run.FinishedAt = o.clock.Now().UTC()
	o.persist(context.Background(), &run)

	metrics.RunsTotal.WithLabelValues(string(run.Status)).Inc()
	metrics.RunDuration.Observe(o.clock.Since(start).Seconds())
	logger.Info("Analysis run finished",
		"status", run.Status,
		"sources_completed", completed,
		"sources_failed", failed,
		"skipped", run.SkippedCount,
		"duration", o.clock.Since(start),
	)
}

// fetchSource streams one connector's items through dedup and mention
// extraction into the scoring channel, preserving the connector's emit
// order for this source.
func (o *Orchestrator) fetchSource(ctx context.Context, run domain.AnalysisRun, conn domain.SourceConnector, since time.Time, out chan<- candidate, scoringOnce *sync.Once) error {
	return conn.Fetch(ctx, run.EntityQuery, since, o.fetchLimit, func(item domain.RawItem) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		fp := fingerprint.New(item.SourceID, item.Text)
		novel, err := o.dedup.IsNew(ctx, run.EntityQuery, fp)
		if err != nil {
			return fmt.Errorf("dedup check failed: %w", err)
		}
		if !novel {
			metrics.DuplicatesRejected.WithLabelValues(item.SourceID).Inc()
			slog.Debug("Duplicate rejected",
				"run_id", run.ID.String(), "source", item.SourceID,
				"fingerprint", string(fp))
			return nil
		}

		span := o.extractor.Extract(item.Text, run.EntityQuery)
		if span == nil {
			metrics.MentionsRejected.WithLabelValues(item.SourceID).Inc()
			return nil
		}

		// First novel mention flips the run into scoring; the run streams,
		// it does not wait for the slowest connector.
		scoringOnce.Do(func() {
			run.Status = domain.RunScoring
			o.persist(ctx, &run)
		})

		select {
		case out <- candidate{raw: item, fp: fp, spn: span}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (o *Orchestrator) scoreAndFold(ctx context.Context, run domain.AnalysisRun, cand candidate, skipped *atomic.Int64, logger *slog.Logger) {
	score, confidence, err := o.scorer.Score(ctx, cand.raw.Text)
	if err != nil {
		if errors.Is(err, domain.ErrScoringFailed) {
			metrics.ScoringFailures.WithLabelValues(cand.raw.SourceID).Inc()
			skipped.Add(1)
			return
		}
		logger.Error("Scorer error", "source", cand.raw.SourceID, "error", err)
		skipped.Add(1)
		return
	}

	item := domain.ScoredItem{
		RawItem:        cand.raw,
		EntityQuery:    run.EntityQuery,
		Fingerprint:    cand.fp,
		SentimentScore: score,
		Confidence:     confidence,
		ModelVersion:   o.scorer.ModelVersion(),
		Mention:        cand.spn,
	}
	if err := o.aggregator.Fold(ctx, item); err != nil {
		logger.Error("Fold failed", "source", cand.raw.SourceID, "error", err)
	}
}

func (o *Orchestrator) terminalStatus(ctx context.Context, completed, failed int) domain.RunStatus {
	switch {
	case ctx.Err() != nil:
		return domain.RunCancelled
	case completed == 0 && failed > 0:
		return domain.RunFailed
	case failed > 0:
		return domain.RunCompletedPartial
	default:
		return domain.RunCompleted
	}
}

// persist writes run state best-effort; a status write failing must not
// kill the pipeline mid-run.
func (o *Orchestrator) persist(ctx context.Context, run *domain.AnalysisRun) {
	if err := o.runs.UpdateRun(ctx, *run); err != nil {
		slog.Warn("Failed to persist run state",
			"run_id", run.ID.String(), "status", run.Status, "error", err)
	}
}
