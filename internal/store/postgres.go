// Package store provides Postgres-backed persistence for availability,
// ratings, and title metadata rows.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netflixcritic/checker/internal/catalog"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Postgres implements catalog.Store on a pgx pool.
type Postgres struct {
	pool  dbPool
	clock catalog.Clock
}

// NewPostgres connects a pool using the provided config.
func NewPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool, clock: catalog.SystemClock{}}, nil
}

// NewPostgresWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresWithPool(pool dbPool, clock catalog.Clock) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		clock = catalog.SystemClock{}
	}
	return &Postgres{pool: pool, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StaleAvailabilityCandidates returns every catalog identifier whose
// most recent availability check is older than the freshness window, or
// that has never been checked.
func (s *Postgres) StaleAvailabilityCandidates(ctx context.Context, window time.Duration) ([]catalog.ID, error) {
	cutoff := s.clock.Now().Add(-window)
	rows, err := s.pool.Query(ctx, `
SELECT t.netflix_id
FROM netflix_titles t
LEFT JOIN (
	SELECT netflix_id, MAX(checked_at) AS checked_at
	FROM netflix_availability
	GROUP BY netflix_id
) a ON a.netflix_id = t.netflix_id
WHERE a.checked_at IS NULL OR a.checked_at < $1
ORDER BY t.netflix_id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("select stale availability: %w", err)
	}
	return scanIDs(rows)
}

// MetadataBackfillCandidates returns identifiers whose title page was
// reachable at the last check but that have no stored metadata yet.
func (s *Postgres) MetadataBackfillCandidates(ctx context.Context) ([]catalog.ID, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT a.netflix_id
FROM netflix_availability a
LEFT JOIN netflix_titles t ON t.netflix_id = a.netflix_id
WHERE a.titlepage_reachable
  AND (t.netflix_id IS NULL OR t.metadata IS NULL)
ORDER BY a.netflix_id`)
	if err != nil {
		return nil, fmt.Errorf("select metadata candidates: %w", err)
	}
	return scanIDs(rows)
}

// RatingsCandidates returns available titles that still lack a Google
// users rating. Identifiers are redirect-resolved so the search query
// describes the page the viewer actually lands on. Special Interest
// titles are skipped; their search results rarely carry rating panels.
func (s *Postgres) RatingsCandidates(ctx context.Context) ([]catalog.RatingsCandidate, error) {
	rows, err := s.pool.Query(ctx, `
SELECT COALESCE(a.redirected_netflix_id, t.netflix_id) AS netflix_id,
	t.title, COALESCE(t.content_type, ''), COALESCE(t.release_year, 0)
FROM netflix_titles t
JOIN netflix_availability a ON a.netflix_id = t.netflix_id
WHERE a.available
  AND t.title <> ''
  AND COALESCE(t.genre, '') <> 'Special Interest'
  AND NOT EXISTS (
	SELECT 1 FROM netflix_ratings r
	WHERE r.netflix_id = t.netflix_id AND r.vendor = 'Google users'
  )
ORDER BY t.netflix_id`)
	if err != nil {
		return nil, fmt.Errorf("select ratings candidates: %w", err)
	}
	defer rows.Close()

	var out []catalog.RatingsCandidate
	for rows.Next() {
		var c catalog.RatingsCandidate
		if err := rows.Scan(&c.ID, &c.Title, &c.ContentType, &c.ReleaseYear); err != nil {
			return nil, fmt.Errorf("scan ratings candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings candidates: %w", err)
	}
	return out, nil
}

// UpsertAvailability writes one availability verdict, replacing any
// earlier row for the same identifier and country.
func (s *Postgres) UpsertAvailability(ctx context.Context, rec catalog.AvailabilityRecord) error {
	if rec.ID == 0 {
		return fmt.Errorf("netflix id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO netflix_availability (
	netflix_id, redirected_netflix_id, country,
	available, titlepage_reachable, checked_at
) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (netflix_id, country) DO UPDATE SET
	redirected_netflix_id = EXCLUDED.redirected_netflix_id,
	available = EXCLUDED.available,
	titlepage_reachable = EXCLUDED.titlepage_reachable,
	checked_at = EXCLUDED.checked_at`,
		rec.ID, rec.RedirectedID, rec.Country,
		rec.Available, rec.TitlepageReachable, rec.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert availability: %w", err)
	}
	return nil
}

// UpsertRatings writes the vendor ratings of one identifier. Later
// observations for the same vendor replace earlier ones.
func (s *Postgres) UpsertRatings(ctx context.Context, ratings []catalog.Rating) error {
	for _, r := range ratings {
		if r.ID == 0 || r.Vendor == "" {
			return fmt.Errorf("rating requires netflix id and vendor")
		}
		_, err := s.pool.Exec(ctx, `
INSERT INTO netflix_ratings (
	netflix_id, vendor, url, rating, ratings_count, checked_at
) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (netflix_id, vendor) DO UPDATE SET
	url = EXCLUDED.url,
	rating = EXCLUDED.rating,
	ratings_count = EXCLUDED.ratings_count,
	checked_at = EXCLUDED.checked_at`,
			r.ID, r.Vendor, r.URL, r.Rating, r.RatingsCount, r.CheckedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert rating %s for %d: %w", r.Vendor, r.ID, err)
		}
	}
	return nil
}

// UpdateTitleMetadata fills the extracted columns of an existing title
// row. Titles are seeded by the catalog import, so a missing row is an
// error, not an insert; the imported title and content_type columns are
// never touched here, so an empty extraction cannot blank them.
func (s *Postgres) UpdateTitleMetadata(ctx context.Context, md catalog.Metadata) error {
	if md.ID == 0 {
		return fmt.Errorf("netflix id is required")
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE netflix_titles SET
	release_year = $2,
	runtime = $3,
	metadata = $4
WHERE netflix_id = $1`,
		md.ID, md.ReleaseYear, md.Runtime, md.Raw,
	)
	if err != nil {
		return fmt.Errorf("update title metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("title %d not present in catalog", md.ID)
	}
	return nil
}

func scanIDs(rows pgx.Rows) ([]catalog.ID, error) {
	defer rows.Close()
	var out []catalog.ID
	for rows.Next() {
		var id catalog.ID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return out, nil
}
