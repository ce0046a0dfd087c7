// Package titlemeta extracts structured metadata from the embedded
// script payload of a saved title page.
package titlemeta

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// contextMarker starts the assignment expression holding the page's
// structured payload inside one of its inline scripts.
const contextMarker = "reactContext ="

// SliceContext locates the inline script carrying the embedded payload
// and returns the expression text from the marker onward. The returned
// slice is what the JS evaluator runs; external scripts have no inline
// content and are skipped.
func SliceContext(html []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", false
	}

	var (
		script string
		found  bool
	)
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		content := s.Text()
		if content == "" {
			return true
		}
		idx := strings.Index(content, contextMarker)
		if idx < 0 {
			return true
		}
		script = content[idx:]
		found = true
		return false
	})
	return script, found
}
