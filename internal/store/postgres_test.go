package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/netflixcritic/checker/internal/catalog"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newMockStore(t *testing.T, now time.Time) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewPostgresWithPool(mock, fixedClock{t: now})
	require.NoError(t, err)
	return s, mock
}

func TestStaleAvailabilityCandidates(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	window := 7 * 24 * time.Hour
	s, mock := newMockStore(t, now)

	mock.ExpectQuery("SELECT t.netflix_id").
		WithArgs(now.Add(-window)).
		WillReturnRows(pgxmock.NewRows([]string{"netflix_id"}).
			AddRow(catalog.ID(81000001)).
			AddRow(catalog.ID(81000002)))

	ids, err := s.StaleAvailabilityCandidates(context.Background(), window)
	require.NoError(t, err)
	require.Equal(t, []catalog.ID{81000001, 81000002}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetadataBackfillCandidates(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, time.Now())

	mock.ExpectQuery("SELECT DISTINCT a.netflix_id").
		WillReturnRows(pgxmock.NewRows([]string{"netflix_id"}).
			AddRow(catalog.ID(81000003)))

	ids, err := s.MetadataBackfillCandidates(context.Background())
	require.NoError(t, err)
	require.Equal(t, []catalog.ID{81000003}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingsCandidates(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, time.Now())

	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(pgxmock.NewRows([]string{"netflix_id", "title", "content_type", "release_year"}).
			AddRow(catalog.ID(81000004), "Example Movie", "movie", 2018))

	candidates, err := s.RatingsCandidates(context.Background())
	require.NoError(t, err)
	require.Equal(t, []catalog.RatingsCandidate{{
		ID:          81000004,
		Title:       "Example Movie",
		ContentType: "movie",
		ReleaseYear: 2018,
	}}, candidates)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAvailability(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	s, mock := newMockStore(t, now)

	rec := catalog.AvailabilityRecord{
		ID:                 81000001,
		RedirectedID:       catalog.IDPtr(81000002),
		Country:            "US",
		Available:          true,
		TitlepageReachable: true,
		CheckedAt:          now,
	}

	mock.ExpectExec("INSERT INTO netflix_availability").
		WithArgs(rec.ID, rec.RedirectedID, rec.Country, rec.Available, rec.TitlepageReachable, rec.CheckedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertAvailability(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAvailabilityRepeatedWriteIsIdempotent(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	s, mock := newMockStore(t, now)

	rec := catalog.AvailabilityRecord{
		ID:                 81000001,
		Country:            "US",
		Available:          true,
		TitlepageReachable: true,
		CheckedAt:          now,
	}

	// Re-running a batch replays the same record; both writes go through
	// the same ON CONFLICT statement and leave one row.
	for i := 0; i < 2; i++ {
		mock.ExpectExec(`INSERT INTO netflix_availability(?s:.*)ON CONFLICT \(netflix_id, country\) DO UPDATE`).
			WithArgs(rec.ID, rec.RedirectedID, rec.Country, rec.Available, rec.TitlepageReachable, rec.CheckedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, s.UpsertAvailability(context.Background(), rec))
	require.NoError(t, s.UpsertAvailability(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAvailabilityRequiresID(t *testing.T) {
	t.Parallel()

	s, _ := newMockStore(t, time.Now())
	err := s.UpsertAvailability(context.Background(), catalog.AvailabilityRecord{Country: "US"})
	require.Error(t, err)
}

func TestUpsertRatings(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	s, mock := newMockStore(t, now)

	url := "https://www.rottentomatoes.com/m/example"
	ratings := []catalog.Rating{
		{ID: 81000001, Vendor: "Rotten Tomatoes", URL: &url, Rating: catalog.IntPtr(92), CheckedAt: now},
		{ID: 81000001, Vendor: "Google users", Rating: catalog.IntPtr(88), CheckedAt: now},
	}

	for _, r := range ratings {
		mock.ExpectExec("INSERT INTO netflix_ratings").
			WithArgs(r.ID, r.Vendor, r.URL, r.Rating, r.RatingsCount, r.CheckedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, s.UpsertRatings(context.Background(), ratings))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTitleMetadata(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, time.Now())

	md := catalog.Metadata{
		ID:          81000001,
		Title:       "Example Movie",
		ReleaseYear: 2018,
		Runtime:     catalog.IntPtr(6323),
		ContentType: "movie",
		Raw:         []byte(`[]`),
	}

	mock.ExpectExec("UPDATE netflix_titles").
		WithArgs(md.ID, md.ReleaseYear, md.Runtime, md.Raw).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateTitleMetadata(context.Background(), md))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTitleMetadataLeavesImportedColumnsAlone(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, time.Now())

	// A payload without a hero object extracts to an empty record; the
	// statement must not carry the title or content_type columns, or the
	// imported catalog values would be blanked.
	md := catalog.Metadata{ID: 81000007, Raw: []byte(`[{"type":"other","data":{}}]`)}

	mock.ExpectExec(`UPDATE netflix_titles SET\s+release_year = \$2,\s+runtime = \$3,\s+metadata = \$4\s+WHERE netflix_id = \$1`).
		WithArgs(md.ID, md.ReleaseYear, md.Runtime, md.Raw).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateTitleMetadata(context.Background(), md))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTitleMetadataMissingRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, time.Now())

	md := catalog.Metadata{ID: 81000009, Title: "Gone"}
	mock.ExpectExec("UPDATE netflix_titles").
		WithArgs(md.ID, md.ReleaseYear, md.Runtime, md.Raw).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateTitleMetadata(context.Background(), md)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not present")
}
