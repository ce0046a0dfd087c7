package ratings

import (
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

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

const resultPage = `<html><body>
<div data-attrid="kc:/film/film:reviews">
  <a href="https://www.rottentomatoes.com/m/example">
    <span>92%</span><span>&#183;</span><span>Rotten Tomatoes</span>
  </a>
  <a href="https://www.imdb.com/title/tt0000001/">
    <span>7.8/10</span><span>&#183;</span><span>IMDb</span>
  </a>
</div>
<div data-attrid="kc:/ugc:thumbs-up">
  <span>88% liked this film</span>
  <span>Google users</span>
</div>
<div data-attrid="kc:/film/film:audience_reviews">
  <span>Audience rating summary</span>
  <span>4.6</span>
  <span>1,234 ratings</span>
</div>
</body></html>`

func TestExtractLinkedAndUnlinkedWidgets(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	extractor := NewExtractor(fixedClock{t: now}, nil)

	got, err := extractor.Extract(81234567, []byte(resultPage))
	require.NoError(t, err)
	require.Len(t, got, 4)

	byVendor := make(map[string]catalog.Rating, len(got))
	for _, r := range got {
		require.Equal(t, catalog.ID(81234567), r.ID)
		require.Equal(t, now, r.CheckedAt)
		byVendor[r.Vendor] = r
	}

	rt := byVendor["Rotten Tomatoes"]
	require.NotNil(t, rt.Rating)
	require.Equal(t, 92, *rt.Rating)
	require.NotNil(t, rt.URL)
	require.Equal(t, "https://www.rottentomatoes.com/m/example", *rt.URL)
	require.Nil(t, rt.RatingsCount)

	imdb := byVendor["IMDb"]
	require.NotNil(t, imdb.Rating)
	require.Equal(t, 78, *imdb.Rating)

	google := byVendor["Google users"]
	require.NotNil(t, google.Rating)
	require.Equal(t, 88, *google.Rating)
	require.Nil(t, google.URL)

	audience := byVendor["Audience rating summary"]
	require.NotNil(t, audience.Rating)
	require.Equal(t, 92, *audience.Rating)
	require.NotNil(t, audience.RatingsCount)
	require.Equal(t, 1234, *audience.RatingsCount)
}

func TestExtractUnparseableWidgetStillYieldsVendorRow(t *testing.T) {
	t.Parallel()

	page := `<div data-attrid="kc:/ugc:thumbs-up">
		<span>most people liked this film</span>
		<span>Google users</span>
	</div>`

	extractor := NewExtractor(nil, nil)
	got, err := extractor.Extract(42, []byte(page))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Google users", got[0].Vendor)
	require.Nil(t, got[0].Rating)
	require.Nil(t, got[0].RatingsCount)
}

func TestExtractAudienceWithoutScoreKeepsCountOnly(t *testing.T) {
	t.Parallel()

	// The count token must not be misread as a score when the widget
	// drops its decimal.
	page := `<div data-attrid="kc:/film/film:reviews">
		<span>Audience rating summary</span>
		<span>1,234 ratings</span>
	</div>`

	extractor := NewExtractor(nil, nil)
	got, err := extractor.Extract(42, []byte(page))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Audience rating summary", got[0].Vendor)
	require.Nil(t, got[0].Rating)
	require.NotNil(t, got[0].RatingsCount)
	require.Equal(t, 1234, *got[0].RatingsCount)
}

func TestExtractSkipsUnparseableLinkedAnchor(t *testing.T) {
	t.Parallel()

	page := `<div data-attrid="kc:/film/film:reviews">
		<a href="https://example.com/a"><span>fresh</span><span>SomeVendor</span></a>
		<a href="https://example.com/b"><span>64%</span><span>Metacritic</span></a>
	</div>`

	extractor := NewExtractor(nil, nil)
	got, err := extractor.Extract(42, []byte(page))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Metacritic", got[0].Vendor)
	require.Equal(t, 64, *got[0].Rating)
}

func TestExtractDeduplicatesVendors(t *testing.T) {
	t.Parallel()

	page := `<div data-attrid="a:reviews">
		<a href="https://example.com/1"><span>90%</span><span>Rotten Tomatoes</span></a>
	</div>
	<div data-attrid="b:reviews">
		<a href="https://example.com/2"><span>40%</span><span>Rotten Tomatoes</span></a>
	</div>`

	extractor := NewExtractor(nil, nil)
	got, err := extractor.Extract(42, []byte(page))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 90, *got[0].Rating)
}

func TestExtractNoWidgets(t *testing.T) {
	t.Parallel()

	extractor := NewExtractor(nil, nil)
	got, err := extractor.Extract(42, []byte(`<html><body><p>nothing here</p></body></html>`))
	require.NoError(t, err)
	require.Empty(t, got)
}
