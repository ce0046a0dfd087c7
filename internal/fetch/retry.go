package fetch

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/netflixcritic/checker/internal/catalog"
	"github.com/netflixcritic/checker/internal/metrics"
)

// FetchFunc is one attempt at a fetch.
type FetchFunc func(ctx context.Context) (catalog.FetchResult, error)

// Retrier wraps fetch attempts with jittered exponential backoff over a
// fixed allow-list of transient error kinds. Identity rejections rotate
// to an alternate header set before retrying instead of waiting.
type Retrier struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
	Jitter      time.Duration
	Rotate      func(ctx context.Context) error
	Logger      *zap.Logger
}

// NewRetrier builds a Retrier with sane defaults.
func NewRetrier(rotate func(ctx context.Context) error, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		MaxAttempts: 4,
		Base:        250 * time.Millisecond,
		Max:         5 * time.Second,
		Jitter:      250 * time.Millisecond,
		Rotate:      rotate,
		Logger:      logger,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or
// exhausts the attempt budget. Exhaustion surfaces the last error to the
// caller for that identifier only; siblings are unaffected.
func (r *Retrier) Do(ctx context.Context, op FetchFunc) (catalog.FetchResult, error) {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 4
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return catalog.FetchResult{}, err
		}

		var rejected *IdentityRejectedError
		if errors.As(err, &rejected) {
			if r.Rotate == nil {
				return catalog.FetchResult{}, err
			}
			if rotateErr := r.Rotate(ctx); rotateErr != nil {
				return catalog.FetchResult{}, fmt.Errorf("rotate identity: %w", rotateErr)
			}
			metrics.ObserveRetry("identity")
			r.Logger.Warn("identity rejected, rotated headers", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		kind, ok := transientKind(err)
		if !ok {
			return catalog.FetchResult{}, err
		}
		metrics.ObserveRetry(kind)

		delay := r.backoff(attempt)
		r.Logger.Warn("transient fetch failure, backing off",
			zap.String("kind", kind),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return catalog.FetchResult{}, err
		}
	}
	return catalog.FetchResult{}, fmt.Errorf("retries exhausted: %w", lastErr)
}

// transientKind reports whether the error is on the retry allow-list.
func transientKind(err error) (string, bool) {
	var throttled *ThrottledError
	if errors.As(err, &throttled) {
		return "throttled", true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return "conn_reset", true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "disconnect", true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout", true
	}
	return "", false
}

// backoff is base*2^attempt capped at Max, plus a uniform jitter draw.
func (r *Retrier) backoff(attempt int) time.Duration {
	delay := float64(r.Base) * math.Pow(2, float64(attempt))
	if r.Max > 0 && delay > float64(r.Max) {
		delay = float64(r.Max)
	}
	return time.Duration(delay) + randomJitter(r.Jitter)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
