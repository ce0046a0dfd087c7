package blob

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netflixcritic/checker/internal/catalog"
)

func TestLocalPutGetRoundtrip(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	body := []byte("<html><body>title page</body></html>")
	uri, err := store.Put(context.Background(), catalog.PageTitle, 81000001, body)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))
	require.True(t, strings.HasSuffix(uri, "title/81000001.html"))

	got, err := store.Get(context.Background(), catalog.PageTitle, 81000001)
	require.NoError(t, err)
	require.Equal(t, body, got)
}

func TestLocalPutOverwrites(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), catalog.PageWatch, 1, []byte("first"))
	require.NoError(t, err)
	_, err = store.Put(context.Background(), catalog.PageWatch, 1, []byte("second"))
	require.NoError(t, err)

	got, err := store.Get(context.Background(), catalog.PageWatch, 1)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}

func TestLocalGetMissing(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), catalog.PageSerp, 404404)
	require.Error(t, err)
}

func TestLocalRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := NewLocal("  ")
	require.Error(t, err)
}

func TestMemoryPutGetRoundtrip(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	body := []byte("page")

	uri, err := store.Put(context.Background(), catalog.PageSerp, 9, body)
	require.NoError(t, err)
	require.Equal(t, "memory://serp/9.html", uri)

	got, err := store.Get(context.Background(), catalog.PageSerp, 9)
	require.NoError(t, err)
	require.Equal(t, body, got)

	// Stored bodies are copies, not aliases.
	body[0] = 'X'
	got, err = store.Get(context.Background(), catalog.PageSerp, 9)
	require.NoError(t, err)
	require.Equal(t, []byte("page"), got)

	_, err = store.Get(context.Background(), catalog.PageSerp, 10)
	require.Error(t, err)
}
