// Package session implements the rate-limited, tiered session pool used
// for all requests against the target service.
package session

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/netflixcritic/checker/internal/catalog"
	"github.com/netflixcritic/checker/internal/metrics"
)

// MaxTiers bounds the number of configured tiers. Exceeding it is a
// configuration error surfaced at construction.
const MaxTiers = 4

// TierConfig describes one connection tier.
type TierConfig struct {
	Name        catalog.Tier
	RPS         float64
	MaxInFlight int
	Headers     http.Header
}

// PoolConfig captures everything needed to build a Pool.
type PoolConfig struct {
	Tiers          []TierConfig
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	HeaderSource   HeaderSource
}

// Pool owns the configured tiers. Tier handles are shared read-only
// after construction except for the header set, which RotateIdentity
// swaps under the tier lock.
type Pool struct {
	tiers   map[catalog.Tier]*tier
	headers HeaderSource
	logger  *zap.Logger
}

type tier struct {
	name    catalog.Tier
	sem     chan struct{}
	limiter *rate.Limiter
	base    *colly.Collector

	mu      sync.Mutex
	headers http.Header
	bag     []http.Header
	next    int
}

// NewPool validates the tier configuration and builds one collector,
// semaphore and token bucket per tier. All configuration errors are
// reported here, never at acquire time.
func NewPool(cfg PoolConfig, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("at least one tier is required")
	}
	if len(cfg.Tiers) > MaxTiers {
		return nil, fmt.Errorf("%d tiers configured, maximum is %d", len(cfg.Tiers), MaxTiers)
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 15 * time.Second
	}

	tiers := make(map[catalog.Tier]*tier, len(cfg.Tiers))
	for _, tc := range cfg.Tiers {
		if tc.Name == "" {
			return nil, fmt.Errorf("tier name is required")
		}
		if _, dup := tiers[tc.Name]; dup {
			return nil, fmt.Errorf("duplicate tier %q", tc.Name)
		}
		if tc.RPS <= 0 {
			return nil, fmt.Errorf("tier %q: rps must be > 0", tc.Name)
		}
		if tc.MaxInFlight <= 0 {
			return nil, fmt.Errorf("tier %q: max in-flight must be > 0", tc.Name)
		}

		c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit(), colly.IgnoreRobotsTxt())
		c.WithTransport(newHTTPTransport(connectTimeout))
		if cfg.RequestTimeout > 0 {
			c.SetRequestTimeout(cfg.RequestTimeout)
		}

		tiers[tc.Name] = &tier{
			name: tc.Name,
			sem:  make(chan struct{}, tc.MaxInFlight),
			// One token every 1/rps seconds, shared by all callers
			// in the tier.
			limiter: rate.NewLimiter(rate.Limit(tc.RPS), 1),
			base:    c,
			headers: cloneHeader(tc.Headers),
		}
	}

	return &Pool{
		tiers:   tiers,
		headers: cfg.HeaderSource,
		logger:  logger,
	}, nil
}

// TierFor selects the tier for a request path. Title pages are publicly
// reachable and go out unauthenticated; everything else carries the
// session cookie.
func TierFor(path string) catalog.Tier {
	if strings.Contains(path, string(catalog.PageTitle)) {
		return catalog.TierUnauthenticated
	}
	return catalog.TierAuthenticated
}

// Acquire blocks until the tier has both a free in-flight slot and a
// rate token. The returned handle must be released after use.
func (p *Pool) Acquire(ctx context.Context, name catalog.Tier) (*Handle, error) {
	t, ok := p.tiers[name]
	if !ok {
		return nil, fmt.Errorf("unknown tier %q", name)
	}

	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire %s slot: %w", name, ctx.Err())
	}

	start := time.Now()
	if err := t.limiter.Wait(ctx); err != nil {
		<-t.sem
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(string(name), waited)
	}

	return &Handle{t: t}, nil
}

// RotateIdentity swaps the tier's header set for the next candidate in
// the identity bag, refreshing the bag from the header source when it
// is exhausted. Used after the remote host rejects our fingerprint.
func (p *Pool) RotateIdentity(ctx context.Context, name catalog.Tier) error {
	t, ok := p.tiers[name]
	if !ok {
		return fmt.Errorf("unknown tier %q", name)
	}
	if p.headers == nil {
		return fmt.Errorf("no header source configured")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.next >= len(t.bag) {
		bag, err := p.headers.BrowserHeaders(ctx)
		if err != nil {
			return fmt.Errorf("refresh identity bag: %w", err)
		}
		if len(bag) == 0 {
			return fmt.Errorf("header source returned no usable identities")
		}
		t.bag = bag
		t.next = 0
	}

	// The session cookie survives rotation; only the browser
	// fingerprint headers change.
	cookie := t.headers.Get("Cookie")
	t.headers = cloneHeader(t.bag[t.next])
	if cookie != "" {
		t.headers.Set("Cookie", cookie)
	}
	t.next++

	metrics.ObserveIdentityRotation()
	p.logger.Info("rotated session identity",
		zap.String("tier", string(name)),
		zap.String("user_agent", t.headers.Get("User-Agent")),
	)
	return nil
}

// Handle is a scoped acquisition of one tier slot.
type Handle struct {
	t    *tier
	once sync.Once
}

// Tier reports which tier the handle belongs to.
func (h *Handle) Tier() catalog.Tier { return h.t.name }

// Release frees the in-flight slot. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() { <-h.t.sem })
}

// Collector returns a fresh collector clone carrying the tier's current
// header set. The clone is private to the caller; no request mutates
// shared tier state.
func (h *Handle) Collector() *colly.Collector {
	c := h.t.base.Clone()
	headers := h.t.currentHeaders()
	c.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})
	return c
}

func (t *tier) currentHeaders() http.Header {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneHeader(t.headers)
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, values := range h {
		out[k] = append([]string(nil), values...)
	}
	return out
}

// Connect stalls are not tolerated even though idle long-lived
// connections are; the dialer timeout is deliberately separate from the
// total request timeout.
func newHTTPTransport(connectTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
