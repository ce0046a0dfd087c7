package fetch

import (
	"context"
	"fmt"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/netflixcritic/checker/internal/catalog"
	"github.com/netflixcritic/checker/internal/metrics"
	"github.com/netflixcritic/checker/internal/session"
)

// Fetcher issues one HTTP GET per call through the session pool and
// classifies the outcome.
type Fetcher struct {
	pool    *session.Pool
	baseURL string
	logger  *zap.Logger
}

// NewFetcher builds a Fetcher on top of the session pool.
func NewFetcher(pool *session.Pool, baseURL string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		pool:    pool,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Fetch gets one page for the identifier and returns its classified
// result. Statuses outside the accepted set surface as typed errors so
// the retry controller can tell throttling and identity rejection apart
// from genuine protocol violations.
func (f *Fetcher) Fetch(ctx context.Context, id catalog.ID, kind catalog.PageKind) (catalog.FetchResult, error) {
	requestURL := fmt.Sprintf("%s/%s/%d", f.baseURL, kind, id)
	tierName := session.TierFor(requestURL)

	handle, err := f.pool.Acquire(ctx, tierName)
	if err != nil {
		return catalog.FetchResult{}, err
	}
	defer handle.Release()

	f.logger.Debug("starting request",
		zap.Int64("id", int64(id)),
		zap.String("url", requestURL),
		zap.String("tier", string(tierName)),
	)

	resp, err := f.visit(ctx, handle.Collector(), requestURL)
	if err != nil {
		return catalog.FetchResult{}, err
	}

	status := resp.StatusCode
	finalURL := resp.Request.URL.String()
	if !Accepted(status) {
		switch {
		case status == 403:
			return catalog.FetchResult{}, &IdentityRejectedError{URL: requestURL, StatusCode: status}
		case status == 429 || status == 503:
			return catalog.FetchResult{}, &ThrottledError{URL: requestURL, StatusCode: status}
		default:
			return catalog.FetchResult{}, &ProtocolError{URL: requestURL, StatusCode: status}
		}
	}

	result := Classify(id, kind, status, requestURL, finalURL, append([]byte(nil), resp.Body...))
	metrics.ObserveCheck(string(kind), result.Available)
	return result, nil
}

// visit runs the collector in a goroutine so a context cancellation is
// honored even while colly blocks. A non-2xx response reaches OnError
// with the response still attached; that is a classification input, not
// a fetch failure.
func (f *Fetcher) visit(ctx context.Context, collector *colly.Collector, url string) (*colly.Response, error) {
	var (
		resp     *colly.Response
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		resp = r
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			resp = r
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if resp != nil {
			return resp, nil
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		return nil, fmt.Errorf("fetch %s: no response received", url)
	}
}
