package catalog

import (
	"context"
	"time"
)

// Store persists availability, rating and metadata records. All writes
// are upserts or keyed updates, so re-running a batch is idempotent.
type Store interface {
	StaleAvailabilityCandidates(ctx context.Context, window time.Duration) ([]ID, error)
	MetadataBackfillCandidates(ctx context.Context) ([]ID, error)
	RatingsCandidates(ctx context.Context) ([]RatingsCandidate, error)
	UpsertAvailability(ctx context.Context, rec AvailabilityRecord) error
	UpsertRatings(ctx context.Context, ratings []Rating) error
	UpdateTitleMetadata(ctx context.Context, md Metadata) error
	Close()
}

// RatingsCandidate is one searchable row for the ratings path: the
// redirect-resolved identifier plus the fields the search query needs.
type RatingsCandidate struct {
	ID          ID
	Title       string
	ContentType string
	ReleaseYear int
}

// BlobStore saves raw fetched bodies keyed by page kind and identifier.
// Put overwrites any previous body for the same key.
type BlobStore interface {
	Put(ctx context.Context, kind PageKind, id ID, body []byte) (string, error)
	Get(ctx context.Context, kind PageKind, id ID) ([]byte, error)
}

// Publisher pushes per-identifier completion events downstream.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
	Close() error
}

// Evaluator turns an embedded script payload into its JSON value.
// Implementations run real JavaScript (headless browser or node
// subprocess); the core treats them as a request/response collaborator.
type Evaluator interface {
	Evaluate(ctx context.Context, script string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock is the default wall-clock implementation.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
