package ratings

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/netflixcritic/checker/internal/catalog"
	"github.com/netflixcritic/checker/internal/metrics"
)

// Rating widgets on a result page carry a data-attrid ending in one of
// these suffixes.
const reviewSelector = `[data-attrid$='reviews'],[data-attrid$='thumbs-up']`

// Vendor names for the two non-link widget shapes.
const (
	vendorGoogleUsers = "Google users"
	vendorAudience    = "Audience rating summary"
)

// Extractor turns a search-result document into vendor rating records.
type Extractor struct {
	clock  catalog.Clock
	logger *zap.Logger
}

func NewExtractor(clock catalog.Clock, logger *zap.Logger) *Extractor {
	if clock == nil {
		clock = catalog.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{clock: clock, logger: logger}
}

// Extract walks every rating widget in the document. Widgets that link
// out yield one record per linked vendor; the two unlinked widget
// shapes yield a record even when their score cannot be parsed, so a
// layout change still leaves a row marking the vendor as seen.
func (e *Extractor) Extract(id catalog.ID, page []byte) ([]catalog.Rating, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	var out []catalog.Rating
	seen := make(map[string]struct{})
	doc.Find(reviewSelector).Each(func(_ int, node *goquery.Selection) {
		var found []catalog.Rating
		if node.Find("a").Length() > 0 {
			found = e.extractLinked(id, node)
		} else if r, ok := e.extractUnlinked(id, node); ok {
			found = []catalog.Rating{r}
		}
		for _, r := range found {
			if _, dup := seen[r.Vendor]; dup {
				continue
			}
			seen[r.Vendor] = struct{}{}
			out = append(out, r)
		}
	})
	return out, nil
}

// extractLinked handles widgets whose vendors are anchors. Each anchor's
// visible text is a token stream of the form [score, vendor], sometimes
// with a single-character separator glyph between them.
func (e *Extractor) extractLinked(id catalog.ID, node *goquery.Selection) []catalog.Rating {
	var out []catalog.Rating
	node.Find("a").Each(func(_ int, a *goquery.Selection) {
		tokens := dropSeparators(strippedStrings(a))
		if len(tokens) < 2 {
			return
		}
		value, ok := Normalize(tokens[0])
		if !ok {
			e.logger.Warn("unparseable linked rating",
				zap.Int64("netflix_id", int64(id)),
				zap.Strings("tokens", tokens),
			)
			metrics.ObserveExtractFailure("rating")
			return
		}
		vendor := tokens[1]
		r := catalog.Rating{
			ID:        id,
			Vendor:    vendor,
			Rating:    catalog.IntPtr(value),
			CheckedAt: e.clock.Now(),
		}
		if href, exists := a.Attr("href"); exists && href != "" {
			r.URL = &href
		}
		metrics.ObserveRating(vendor)
		out = append(out, r)
	})
	return out
}

// extractUnlinked handles the two widget shapes without anchors. Parse
// failures still yield a record with nil score so the vendor row exists.
func (e *Extractor) extractUnlinked(id catalog.ID, node *goquery.Selection) (catalog.Rating, bool) {
	tokens := strippedStrings(node)
	text := strings.Join(tokens, " ")

	var vendor string
	switch {
	case strings.Contains(text, vendorGoogleUsers):
		vendor = vendorGoogleUsers
	case strings.Contains(text, vendorAudience):
		vendor = vendorAudience
	default:
		return catalog.Rating{}, false
	}

	r := catalog.Rating{ID: id, Vendor: vendor, CheckedAt: e.clock.Now()}
	if value, ok := firstNormalized(tokens); ok {
		r.Rating = catalog.IntPtr(value)
		metrics.ObserveRating(vendor)
	} else {
		e.logger.Warn("unparseable widget rating",
			zap.Int64("netflix_id", int64(id)),
			zap.String("vendor", vendor),
		)
		metrics.ObserveExtractFailure("rating")
	}
	if vendor == vendorAudience {
		if count, ok := ParseRatingsCount(text); ok {
			r.RatingsCount = catalog.IntPtr(count)
		}
	}
	return r, true
}

func firstNormalized(tokens []string) (int, bool) {
	for _, tok := range tokens {
		if v, ok := Normalize(tok); ok {
			return v, true
		}
	}
	return 0, false
}

// dropSeparators removes single-character glyph tokens such as the
// interpunct the widget renders between score and vendor.
func dropSeparators(tokens []string) []string {
	out := tokens[:0]
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) > 1 {
			out = append(out, tok)
		}
	}
	return out
}

// strippedStrings collects the trimmed text nodes under the selection in
// document order, skipping whitespace-only nodes.
func strippedStrings(sel *goquery.Selection) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				out = append(out, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return out
}
