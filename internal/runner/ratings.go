package runner

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netflixcritic/checker/internal/catalog"
	"github.com/netflixcritic/checker/internal/progress"
	"github.com/netflixcritic/checker/internal/serp"
)

// PopulateRatings runs the ratings pipeline over every available title
// still missing a Google users rating.
func (r *Runner) PopulateRatings(ctx context.Context) (Report, error) {
	candidates, err := r.deps.Store.RatingsCandidates(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("select candidates: %w", err)
	}

	byID := make(map[catalog.ID]catalog.RatingsCandidate, len(candidates))
	ids := make([]catalog.ID, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := byID[c.ID]; dup {
			// Two catalog rows redirecting to the same canonical id
			// need only one search.
			continue
		}
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	report := r.fanOut(ctx, progress.PipelineRatings, ids, func(ctx context.Context, batch uuid.UUID, id catalog.ID) error {
		return r.rateOne(ctx, batch, byID[id])
	})
	return report, nil
}

// rateOne searches for one candidate and persists whatever vendor
// ratings the result page carries.
func (r *Runner) rateOne(ctx context.Context, batch uuid.UUID, c catalog.RatingsCandidate) error {
	query := serp.BuildQuery(c)
	page, err := r.deps.Searcher.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("search %q: %w", query, err)
	}

	if _, err := r.deps.Blob.Put(ctx, catalog.PageSerp, c.ID, page); err != nil {
		r.deps.Logger.Warn("archive search page failed",
			zap.Int64("netflix_id", int64(c.ID)),
			zap.Error(err),
		)
	}

	found, err := r.deps.Extractor.Extract(c.ID, page)
	if err != nil {
		return fmt.Errorf("extract ratings: %w", err)
	}
	if len(found) == 0 {
		r.deps.Logger.Info("no rating widgets on result page",
			zap.Int64("netflix_id", int64(c.ID)),
			zap.String("query", query),
		)
		return nil
	}

	if err := r.deps.Store.UpsertRatings(ctx, found); err != nil {
		return err
	}

	vendors := make([]string, 0, len(found))
	for _, rating := range found {
		vendors = append(vendors, rating.Vendor)
	}
	r.publish(ctx, completionEvent{
		BatchID:   batch.String(),
		Pipeline:  string(progress.PipelineRatings),
		NetflixID: int64(c.ID),
		Vendors:   vendors,
		CheckedAt: r.deps.Clock.Now(),
	})
	return nil
}
