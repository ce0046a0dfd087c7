package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netflixcritic/checker/internal/catalog"
	"github.com/netflixcritic/checker/internal/session"
)

func newTestPool(t *testing.T) *session.Pool {
	t.Helper()
	headers := http.Header{}
	headers.Set("User-Agent", "checker-test")
	pool, err := session.NewPool(session.PoolConfig{
		Tiers: []session.TierConfig{
			{Name: catalog.TierUnauthenticated, RPS: 1000, MaxInFlight: 4, Headers: headers},
			{Name: catalog.TierAuthenticated, RPS: 1000, MaxInFlight: 4, Headers: headers},
		},
	}, nil)
	require.NoError(t, err)
	return pool
}

func TestFetcherClassifiesAvailableTitle(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/title/81000001" {
			gotUA = r.Header.Get("User-Agent")
			fmt.Fprint(w, "<html><body>title page</body></html>")
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(newTestPool(t), srv.URL, nil)
	result, err := f.Fetch(context.Background(), 81000001, catalog.PageTitle)
	require.NoError(t, err)
	require.True(t, result.Available)
	require.Equal(t, 200, result.StatusCode)
	require.Equal(t, "checker-test", gotUA)
}

func TestFetcherNotFoundIsUnavailableNotError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(newTestPool(t), srv.URL, nil)
	result, err := f.Fetch(context.Background(), 81000001, catalog.PageTitle)
	require.NoError(t, err)
	require.False(t, result.Available)
	require.Equal(t, 404, result.StatusCode)
}

func TestFetcherTypedErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		check  func(t *testing.T, err error)
	}{
		{status: 403, check: func(t *testing.T, err error) {
			var rejected *IdentityRejectedError
			require.ErrorAs(t, err, &rejected)
		}},
		{status: 429, check: func(t *testing.T, err error) {
			var throttled *ThrottledError
			require.ErrorAs(t, err, &throttled)
		}},
		{status: 500, check: func(t *testing.T, err error) {
			var protocol *ProtocolError
			require.ErrorAs(t, err, &protocol)
		}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			f := NewFetcher(newTestPool(t), srv.URL, nil)
			_, err := f.Fetch(context.Background(), 81000001, catalog.PageWatch)
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestFetcherHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(newTestPool(t), srv.URL, nil)
	_, err := f.Fetch(ctx, 81000001, catalog.PageTitle)
	require.Error(t, err)
}
