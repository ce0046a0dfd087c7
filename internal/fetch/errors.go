// Package fetch issues single page fetches against the target service
// and classifies their outcomes.
package fetch

import "fmt"

// ProtocolError reports a response status outside the accepted set
// {200, 301, 302, 404}. It is fatal for the current fetch and is not
// retried unless it matches the throttling allow-list.
type ProtocolError struct {
	URL        string
	StatusCode int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d for %s", e.StatusCode, e.URL)
}

// ThrottledError reports a throttling response. Retryable under backoff.
type ThrottledError struct {
	URL        string
	StatusCode int
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled (%d) fetching %s", e.StatusCode, e.URL)
}

// IdentityRejectedError reports that the remote host refused the request
// based on our headers/fingerprint. The retry controller rotates to an
// alternate identity before retrying.
type IdentityRejectedError struct {
	URL        string
	StatusCode int
}

func (e *IdentityRejectedError) Error() string {
	return fmt.Sprintf("identity rejected (%d) fetching %s", e.StatusCode, e.URL)
}
