package fetch

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/netflixcritic/checker/internal/catalog"
)

// redirectOriginParam is the query parameter the service attaches to the
// resolved URL when an unavailable title redirects (e.g. /watch/0?origId=<id>).
const redirectOriginParam = "origId"

var acceptedStatuses = map[int]struct{}{
	200: {},
	301: {},
	302: {},
	404: {},
}

// Accepted reports whether the status is in the accepted response set.
func Accepted(status int) bool {
	_, ok := acceptedStatuses[status]
	return ok
}

// Classify derives the availability verdict for one fetched page. Pure
// given the response; evaluated strictly in order:
//
//  1. 404 is unavailable, no redirect.
//  2. A resolved URL carrying the redirect-origin marker is unavailable,
//     whatever the marker's value; it is recorded as the redirect target
//     only when it names a different identifier.
//  3. A body containing the error-page marker is unavailable.
//  4. Otherwise available iff the status is in the success/redirect range.
//
// A redirect to a different canonical identifier without the origin
// marker (title supersession) stays available; the redirected identifier
// is still recorded so dependent fetches use it.
func Classify(id catalog.ID, kind catalog.PageKind, status int, requestURL, finalURL string, body []byte) catalog.FetchResult {
	result := catalog.FetchResult{
		ID:         id,
		Kind:       kind,
		RequestURL: requestURL,
		FinalURL:   finalURL,
		StatusCode: status,
		Body:       body,
	}

	if status == 404 {
		return result
	}

	target, fromOrigin := redirectTarget(finalURL, id)
	if target != 0 {
		result.RedirectedID = catalog.IDPtr(target)
	}
	if fromOrigin {
		return result
	}
	if hasErrorPageMarker(body) {
		return result
	}

	result.Available = status >= 200 && status < 400
	return result
}

// redirectTarget parses the redirect out of a resolved URL. Any
// redirect-origin query parameter marks the redirect as origin-driven
// (fromOrigin true) no matter its value; unavailable watch pages resolve
// to /watch/0?origId=<requested>. The target identifier is the marker
// value when it parses to a different identifier, else the trailing path
// segment of a URL that no longer names the requested one.
func redirectTarget(finalURL string, id catalog.ID) (target catalog.ID, fromOrigin bool) {
	if finalURL == "" {
		return 0, false
	}

	u, err := url.Parse(finalURL)
	if err != nil {
		return 0, false
	}
	requested := strconv.FormatInt(int64(id), 10)
	if origin := u.Query().Get(redirectOriginParam); origin != "" {
		if t := parseID(origin); t != id {
			return t, true
		}
		return 0, true
	}
	if strings.Contains(finalURL, requested) {
		return 0, false
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parseID(segments[len(segments)-1]), false
}

func parseID(s string) catalog.ID {
	parsed, err := strconv.ParseInt(s, 10, 64)
	if err != nil || parsed <= 0 {
		return 0
	}
	return catalog.ID(parsed)
}

func hasErrorPageMarker(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return doc.Find("div.error-page").Length() > 0
}
