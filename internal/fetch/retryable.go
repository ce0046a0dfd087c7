package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/netflixcritic/checker/internal/catalog"
	"github.com/netflixcritic/checker/internal/session"
)

// RetryPolicy carries the backoff knobs shared by every retried fetch.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
	Jitter      time.Duration
}

// RetryingFetcher wraps a Fetcher with the retry controller and wires
// identity rotation to the session pool tier of the requested page.
type RetryingFetcher struct {
	inner  *Fetcher
	pool   *session.Pool
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetryingFetcher builds the retrying wrapper. Zero policy fields
// fall back to the controller defaults.
func NewRetryingFetcher(inner *Fetcher, pool *session.Pool, policy RetryPolicy, logger *zap.Logger) *RetryingFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingFetcher{inner: inner, pool: pool, policy: policy, logger: logger}
}

// Fetch runs one classified page fetch under the retry policy.
func (f *RetryingFetcher) Fetch(ctx context.Context, id catalog.ID, kind catalog.PageKind) (catalog.FetchResult, error) {
	tier := session.TierFor(string(kind))
	retrier := NewRetrier(func(ctx context.Context) error {
		return f.pool.RotateIdentity(ctx, tier)
	}, f.logger)
	if f.policy.MaxAttempts > 0 {
		retrier.MaxAttempts = f.policy.MaxAttempts
	}
	if f.policy.Base > 0 {
		retrier.Base = f.policy.Base
	}
	if f.policy.Max > 0 {
		retrier.Max = f.policy.Max
	}
	if f.policy.Jitter > 0 {
		retrier.Jitter = f.policy.Jitter
	}
	return retrier.Do(ctx, func(ctx context.Context) (catalog.FetchResult, error) {
		return f.inner.Fetch(ctx, id, kind)
	})
}
