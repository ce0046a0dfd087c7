package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netflixcritic/checker/internal/catalog"
	"github.com/netflixcritic/checker/internal/metrics"
	"github.com/netflixcritic/checker/internal/progress"
	"github.com/netflixcritic/checker/internal/titlemeta"
)

// BackfillMetadata runs the metadata pipeline over every identifier with
// a reachable title page and no stored metadata.
func (r *Runner) BackfillMetadata(ctx context.Context) (Report, error) {
	ids, err := r.deps.Store.MetadataBackfillCandidates(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("select candidates: %w", err)
	}
	report := r.fanOut(ctx, progress.PipelineMetadata, ids, r.backfillOne)
	return report, nil
}

// backfillOne extracts and persists one identifier's metadata from its
// archived title page, refetching the page when the archive misses.
func (r *Runner) backfillOne(ctx context.Context, batch uuid.UUID, id catalog.ID) error {
	body, err := r.titlePage(ctx, id)
	if err != nil {
		return err
	}

	script, found := titlemeta.SliceContext(body)
	if !found {
		metrics.ObserveExtractFailure("context")
		return fmt.Errorf("no embedded payload in title page for %d", id)
	}

	payload, err := r.deps.Evaluator.Evaluate(ctx, script)
	if err != nil {
		metrics.ObserveExtractFailure("evaluate")
		return fmt.Errorf("evaluate payload: %w", err)
	}

	md, err := titlemeta.Extract(id, []byte(payload))
	if err != nil {
		var extractErr *titlemeta.ExtractError
		if errors.As(err, &extractErr) {
			metrics.ObserveExtractFailure(extractErr.Stage)
		}
		return err
	}

	if err := r.deps.Store.UpdateTitleMetadata(ctx, md); err != nil {
		return err
	}

	r.publish(ctx, completionEvent{
		BatchID:   batch.String(),
		Pipeline:  string(progress.PipelineMetadata),
		NetflixID: int64(id),
		CheckedAt: r.deps.Clock.Now(),
	})
	return nil
}

// titlePage returns the archived title page body, falling back to a
// fresh fetch when the archive has nothing for the identifier.
func (r *Runner) titlePage(ctx context.Context, id catalog.ID) ([]byte, error) {
	body, err := r.deps.Blob.Get(ctx, catalog.PageTitle, id)
	if err == nil {
		return body, nil
	}
	r.deps.Logger.Debug("title page not archived, refetching",
		zap.Int64("netflix_id", int64(id)),
		zap.Error(err),
	)

	result, err := r.deps.Fetcher.Fetch(ctx, id, catalog.PageTitle)
	if err != nil {
		return nil, fmt.Errorf("refetch title page: %w", err)
	}
	if !result.Available {
		return nil, fmt.Errorf("title page for %d no longer reachable", id)
	}
	if _, err := r.deps.Blob.Put(ctx, catalog.PageTitle, id, result.Body); err != nil {
		r.deps.Logger.Warn("archive refetched title page failed",
			zap.Int64("netflix_id", int64(id)),
			zap.Error(err),
		)
	}
	return result.Body, nil
}
