// Package catalog defines core types shared across subsystems.
package catalog

import "time"

// ID is the numeric identifier assigned to a catalog entry by the
// remote service. IDs are opaque and immutable once assigned.
type ID int64

// PageKind names the page variants fetched per identifier.
type PageKind string

// Page kinds used for request paths and raw-body storage keys.
const (
	PageTitle PageKind = "title"
	PageWatch PageKind = "watch"
	PageSerp  PageKind = "serp"
)

// Tier names a connection group sharing auth context, concurrency cap
// and rate limiter.
type Tier string

// Session tiers. Title pages are publicly reachable; everything else
// requires the authenticated session cookie.
const (
	TierUnauthenticated Tier = "unauthenticated"
	TierAuthenticated   Tier = "authenticated"
)

// FetchResult is the classified outcome of one page fetch. It lives for
// the duration of a single identifier's task and is not retained.
type FetchResult struct {
	ID           ID
	Kind         PageKind
	RequestURL   string
	FinalURL     string
	StatusCode   int
	Body         []byte
	Available    bool
	RedirectedID *ID
}

// AvailabilityRecord is the persisted availability verdict for one
// (identifier, country) pair. Upserted in place, never duplicated.
type AvailabilityRecord struct {
	ID                 ID
	RedirectedID       *ID
	Country            string
	Available          bool
	TitlepageReachable bool
	CheckedAt          time.Time
}

// Rating is one third-party critic or audience score normalized to the
// 0-100 scale. Unique per (identifier, vendor); later observations
// overwrite earlier ones.
type Rating struct {
	ID           ID
	Vendor       string
	URL          *string
	Rating       *int
	RatingsCount *int
	CheckedAt    time.Time
}

// Metadata is the structured record extracted from a title page's
// embedded payload. Runtime is absent for episodic series.
type Metadata struct {
	ID          ID
	Title       string
	ReleaseYear int
	Runtime     *int
	ContentType string
	Raw         []byte
}

// IntPtr is a small helper for optional integer columns.
func IntPtr(v int) *int { return &v }

// IDPtr is a small helper for optional identifier columns.
func IDPtr(v ID) *ID { return &v }
