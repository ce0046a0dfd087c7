// Package runner orchestrates the three batch pipelines over the
// candidate sets the store selects.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netflixcritic/checker/internal/catalog"
	"github.com/netflixcritic/checker/internal/metrics"
	"github.com/netflixcritic/checker/internal/progress"
	"github.com/netflixcritic/checker/internal/ratings"
	"github.com/netflixcritic/checker/internal/resolve"
)

// Searcher fetches a rendered search-result page for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]byte, error)
}

// Config carries the batch-level knobs.
type Config struct {
	Concurrency     int
	Country         string
	FreshnessWindow time.Duration
}

// Deps are the collaborators a Runner drives. Publisher and Emitter may
// be nil; the pipelines then skip those side effects.
type Deps struct {
	Store     catalog.Store
	Blob      catalog.BlobStore
	Publisher catalog.Publisher
	Fetcher   resolve.PageFetcher
	Evaluator catalog.Evaluator
	Searcher  Searcher
	Extractor *ratings.Extractor
	Emitter   progress.Emitter
	Clock     catalog.Clock
	Logger    *zap.Logger
}

// Runner executes batch pipelines with bounded concurrency. A failed
// identifier never affects its siblings; failures are captured in the
// report.
type Runner struct {
	cfg      Config
	deps     Deps
	resolver *resolve.Resolver
}

// New builds a Runner, filling defaulted config and deps.
func New(cfg Config, deps Deps) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 32
	}
	if cfg.Country == "" {
		cfg.Country = "US"
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = 7 * 24 * time.Hour
	}
	if deps.Clock == nil {
		deps.Clock = catalog.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		deps:     deps,
		resolver: resolve.New(deps.Fetcher, deps.Logger),
	}
}

// TaskError records one failed identifier within a batch.
type TaskError struct {
	ID  catalog.ID
	Err error
}

// Report summarizes one batch run.
type Report struct {
	BatchID   uuid.UUID
	Total     int
	Succeeded int
	Failed    int
	Errors    []TaskError
	Elapsed   time.Duration
}

// fanOut runs one task per identifier under the concurrency cap. Context
// cancellation stops new tasks from starting; in-flight tasks observe
// ctx themselves.
func (r *Runner) fanOut(ctx context.Context, pipeline progress.Pipeline, ids []catalog.ID, task func(context.Context, uuid.UUID, catalog.ID) error) Report {
	start := r.deps.Clock.Now()
	batchID := uuid.New()
	report := Report{BatchID: batchID, Total: len(ids)}

	r.emit(progress.Event{
		BatchID:  progress.UUIDToBytes(batchID),
		TS:       start,
		Stage:    progress.StageBatchStart,
		Pipeline: pipeline,
	})
	r.deps.Logger.Info("batch started",
		zap.String("batch_id", batchID.String()),
		zap.String("pipeline", string(pipeline)),
		zap.Int("candidates", len(ids)),
	)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, r.cfg.Concurrency)
	)
	for _, id := range ids {
		select {
		case <-ctx.Done():
			mu.Lock()
			report.Failed++
			report.Errors = append(report.Errors, TaskError{ID: id, Err: ctx.Err()})
			mu.Unlock()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			taskStart := r.deps.Clock.Now()
			err := task(ctx, batchID, id)
			metrics.ObserveTask(string(pipeline), err)

			evt := progress.Event{
				BatchID:   progress.UUIDToBytes(batchID),
				TS:        r.deps.Clock.Now(),
				Stage:     progress.StageTaskDone,
				Pipeline:  pipeline,
				NetflixID: int64(id),
				Dur:       r.deps.Clock.Now().Sub(taskStart),
			}

			mu.Lock()
			if err != nil {
				report.Failed++
				report.Errors = append(report.Errors, TaskError{ID: id, Err: err})
				evt.Stage = progress.StageTaskError
				evt.Note = err.Error()
			} else {
				report.Succeeded++
			}
			mu.Unlock()

			r.emit(evt)
			if err != nil {
				r.deps.Logger.Warn("task failed",
					zap.String("batch_id", batchID.String()),
					zap.String("pipeline", string(pipeline)),
					zap.Int64("netflix_id", int64(id)),
					zap.Error(err),
				)
			}
		}()
	}
	wg.Wait()

	report.Elapsed = r.deps.Clock.Now().Sub(start)
	r.emit(progress.Event{
		BatchID:  progress.UUIDToBytes(batchID),
		TS:       r.deps.Clock.Now(),
		Stage:    progress.StageBatchDone,
		Pipeline: pipeline,
		Dur:      report.Elapsed,
	})
	r.deps.Logger.Info("batch finished",
		zap.String("batch_id", batchID.String()),
		zap.String("pipeline", string(pipeline)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report
}

func (r *Runner) emit(evt progress.Event) {
	if r.deps.Emitter != nil {
		r.deps.Emitter.Emit(evt)
	}
}

// completionEvent is the payload published per finished identifier.
type completionEvent struct {
	BatchID   string    `json:"batch_id"`
	Pipeline  string    `json:"pipeline"`
	NetflixID int64     `json:"netflix_id"`
	Available *bool     `json:"available,omitempty"`
	Vendors   []string  `json:"vendors,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

func (r *Runner) publish(ctx context.Context, evt completionEvent) {
	if r.deps.Publisher == nil {
		return
	}
	if _, err := r.deps.Publisher.Publish(ctx, evt); err != nil {
		r.deps.Logger.Warn("publish completion event failed",
			zap.Int64("netflix_id", evt.NetflixID),
			zap.Error(err),
		)
	}
}
