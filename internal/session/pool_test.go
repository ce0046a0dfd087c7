package session

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netflixcritic/checker/internal/catalog"
	"github.com/netflixcritic/checker/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

func twoTierConfig() PoolConfig {
	return PoolConfig{
		Tiers: []TierConfig{
			{Name: catalog.TierUnauthenticated, RPS: 1000, MaxInFlight: 2},
			{Name: catalog.TierAuthenticated, RPS: 1000, MaxInFlight: 2},
		},
	}
}

func TestNewPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPool(PoolConfig{}, nil)
	require.Error(t, err)

	_, err = NewPool(PoolConfig{Tiers: []TierConfig{
		{Name: catalog.TierAuthenticated, RPS: 0, MaxInFlight: 1},
	}}, nil)
	require.Error(t, err)

	_, err = NewPool(PoolConfig{Tiers: []TierConfig{
		{Name: catalog.TierAuthenticated, RPS: 1, MaxInFlight: 1},
		{Name: catalog.TierAuthenticated, RPS: 1, MaxInFlight: 1},
	}}, nil)
	require.Error(t, err)

	tiers := make([]TierConfig, MaxTiers+1)
	for i := range tiers {
		tiers[i] = TierConfig{Name: catalog.Tier(rune('a' + i)), RPS: 1, MaxInFlight: 1}
	}
	_, err = NewPool(PoolConfig{Tiers: tiers}, nil)
	require.Error(t, err)
}

func TestTierFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, catalog.TierUnauthenticated, TierFor("https://example.com/title/81000001"))
	require.Equal(t, catalog.TierAuthenticated, TierFor("https://example.com/watch/81000001"))
	require.Equal(t, catalog.TierAuthenticated, TierFor("https://example.com/search"))
}

func TestAcquireEnforcesInFlightCap(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(PoolConfig{
		Tiers: []TierConfig{{Name: catalog.TierAuthenticated, RPS: 1000, MaxInFlight: 1}},
	}, nil)
	require.NoError(t, err)

	first, err := pool.Acquire(context.Background(), catalog.TierAuthenticated)
	require.NoError(t, err)

	blocked, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(blocked, catalog.TierAuthenticated)
	require.Error(t, err)

	first.Release()
	second, err := pool.Acquire(context.Background(), catalog.TierAuthenticated)
	require.NoError(t, err)
	second.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(PoolConfig{
		Tiers: []TierConfig{{Name: catalog.TierAuthenticated, RPS: 1000, MaxInFlight: 1}},
	}, nil)
	require.NoError(t, err)

	handle, err := pool.Acquire(context.Background(), catalog.TierAuthenticated)
	require.NoError(t, err)
	handle.Release()
	handle.Release()

	again, err := pool.Acquire(context.Background(), catalog.TierAuthenticated)
	require.NoError(t, err)
	again.Release()
}

func TestAcquireUnknownTier(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(twoTierConfig(), nil)
	require.NoError(t, err)

	_, err = pool.Acquire(context.Background(), catalog.Tier("nope"))
	require.Error(t, err)
}

type stubHeaderSource struct {
	bags [][]http.Header
	call int
}

func (s *stubHeaderSource) BrowserHeaders(context.Context) ([]http.Header, error) {
	if s.call >= len(s.bags) {
		return nil, nil
	}
	bag := s.bags[s.call]
	s.call++
	return bag, nil
}

func TestRotateIdentityPreservesCookie(t *testing.T) {
	t.Parallel()

	initial := http.Header{}
	initial.Set("Cookie", "NetflixId=abc123")
	initial.Set("User-Agent", "original-agent")

	replacement := http.Header{}
	replacement.Set("User-Agent", "rotated-agent")

	pool, err := NewPool(PoolConfig{
		Tiers: []TierConfig{
			{Name: catalog.TierAuthenticated, RPS: 1000, MaxInFlight: 1, Headers: initial},
		},
		HeaderSource: &stubHeaderSource{bags: [][]http.Header{{replacement}}},
	}, nil)
	require.NoError(t, err)

	require.NoError(t, pool.RotateIdentity(context.Background(), catalog.TierAuthenticated))

	current := pool.tiers[catalog.TierAuthenticated].currentHeaders()
	require.Equal(t, "rotated-agent", current.Get("User-Agent"))
	require.Equal(t, "NetflixId=abc123", current.Get("Cookie"))
}

func TestRotateIdentityWithoutSource(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(twoTierConfig(), nil)
	require.NoError(t, err)

	err = pool.RotateIdentity(context.Background(), catalog.TierAuthenticated)
	require.Error(t, err)
}

func TestRotateIdentityEmptyBag(t *testing.T) {
	t.Parallel()

	cfg := twoTierConfig()
	cfg.HeaderSource = &stubHeaderSource{}
	pool, err := NewPool(cfg, nil)
	require.NoError(t, err)

	err = pool.RotateIdentity(context.Background(), catalog.TierAuthenticated)
	require.Error(t, err)
}
