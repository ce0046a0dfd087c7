package runner

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netflixcritic/checker/internal/catalog"
	"github.com/netflixcritic/checker/internal/progress"
)

// CheckAvailability runs the availability pipeline over every identifier
// whose last verdict is older than the freshness window.
func (r *Runner) CheckAvailability(ctx context.Context) (Report, error) {
	ids, err := r.deps.Store.StaleAvailabilityCandidates(ctx, r.cfg.FreshnessWindow)
	if err != nil {
		return Report{}, fmt.Errorf("select candidates: %w", err)
	}
	report := r.fanOut(ctx, progress.PipelineAvailability, ids, r.checkOne)
	return report, nil
}

// checkOne resolves, persists, and archives a single identifier.
func (r *Runner) checkOne(ctx context.Context, batch uuid.UUID, id catalog.ID) error {
	res, err := r.resolver.Resolve(ctx, id)
	if err != nil {
		return err
	}

	rec := res.Record(id, r.cfg.Country, r.deps.Clock)
	if err := r.deps.Store.UpsertAvailability(ctx, rec); err != nil {
		return err
	}

	// Reachable title pages are archived for the metadata pipeline;
	// watch pages only confirm playability and are not kept.
	if res.Title.Available && len(res.Title.Body) > 0 {
		if _, err := r.deps.Blob.Put(ctx, catalog.PageTitle, id, res.Title.Body); err != nil {
			r.deps.Logger.Warn("archive title page failed",
				zap.Int64("netflix_id", int64(id)),
				zap.Error(err),
			)
		}
	}

	r.publish(ctx, completionEvent{
		BatchID:   batch.String(),
		Pipeline:  string(progress.PipelineAvailability),
		NetflixID: int64(id),
		Available: &rec.Available,
		CheckedAt: rec.CheckedAt,
	})
	return nil
}
