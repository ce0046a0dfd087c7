// Package resolve implements the title→watch redirect resolution state
// machine for one identifier.
package resolve

import (
	"context"

	"go.uber.org/zap"

	"github.com/netflixcritic/checker/internal/catalog"
)

// PageFetcher fetches and classifies one page for an identifier.
type PageFetcher interface {
	Fetch(ctx context.Context, id catalog.ID, kind catalog.PageKind) (catalog.FetchResult, error)
}

// Resolver walks the two-step check per identifier: the title page
// first, and only when that is available the watch page, under the
// identifier the title fetch resolved to. Unavailability is monotonic
// across dependent pages, so an unavailable title page skips the watch
// fetch entirely.
type Resolver struct {
	fetcher PageFetcher
	logger  *zap.Logger
}

// New builds a Resolver.
func New(fetcher PageFetcher, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fetcher: fetcher, logger: logger}
}

// Resolution is the outcome of one identifier's check. Watch is nil
// when the title page verdict made the watch fetch unnecessary.
type Resolution struct {
	Title catalog.FetchResult
	Watch *catalog.FetchResult
}

// Available is the verdict of the last page actually fetched.
func (r Resolution) Available() bool {
	if r.Watch != nil {
		return r.Watch.Available
	}
	return r.Title.Available
}

// TitlepageReachable reports whether the title page specifically was
// available.
func (r Resolution) TitlepageReachable() bool {
	return r.Title.Available
}

// RedirectedID is the canonical identifier the check resolved to, from
// the last page that reported one.
func (r Resolution) RedirectedID() *catalog.ID {
	if r.Watch != nil && r.Watch.RedirectedID != nil {
		return r.Watch.RedirectedID
	}
	return r.Title.RedirectedID
}

// Resolve runs the state machine for one identifier. Sometimes the
// title page is reachable even for titles that cannot be played, so an
// available title verdict is confirmed against the watch page.
func (r *Resolver) Resolve(ctx context.Context, id catalog.ID) (Resolution, error) {
	title, err := r.fetcher.Fetch(ctx, id, catalog.PageTitle)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{Title: title}
	if !title.Available {
		r.logger.Debug("title page unavailable, skipping watch page", zap.Int64("id", int64(id)))
		return res, nil
	}

	watchID := id
	if title.RedirectedID != nil {
		watchID = *title.RedirectedID
		r.logger.Debug("title page redirected",
			zap.Int64("id", int64(id)),
			zap.Int64("redirected_id", int64(watchID)),
		)
	}

	watch, err := r.fetcher.Fetch(ctx, watchID, catalog.PageWatch)
	if err != nil {
		return res, err
	}
	res.Watch = &watch
	return res, nil
}

// Record folds a resolution into the availability record persisted for
// the identifier. The available flag reflects the last page checked;
// titlepage_reachable records the title verdict separately.
func (r Resolution) Record(id catalog.ID, country string, clock catalog.Clock) catalog.AvailabilityRecord {
	return catalog.AvailabilityRecord{
		ID:                 id,
		RedirectedID:       r.RedirectedID(),
		Country:            country,
		Available:          r.Available(),
		TitlepageReachable: r.TitlepageReachable(),
		CheckedAt:          clock.Now(),
	}
}
