// Package ratings parses search-result fragments into vendor rating
// records normalized to the 0-100 scale.
package ratings

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Ordered normalization patterns; first match wins. Every result is an
// integer in [0,100]: a token whose numerator falls outside its scale
// yields no rating at all.
var (
	rePercent      = regexp.MustCompile(`(\d+)%`)
	reOutOfFive    = regexp.MustCompile(`\b(\d+(?:\.\d+)?)/5\b`)
	reOutOfTen     = regexp.MustCompile(`\b(\d+(?:\.\d+)?)/10\b`)
	reAudience     = regexp.MustCompile(`^(\d(?:\.\d+)?)(?:\s|$)`)
	reRatingsCount = regexp.MustCompile(`([\d,]+)\s+ratings`)
)

// Normalize maps one rating token onto the common 0-100 scale.
func Normalize(token string) (int, bool) {
	if m := rePercent.FindStringSubmatch(token); m != nil {
		v, err := strconv.Atoi(m[1])
		if err != nil || v > 100 {
			return 0, false
		}
		return v, true
	}
	if m := reOutOfFive.FindStringSubmatch(token); m != nil {
		return scale(m[1], 5)
	}
	if m := reOutOfTen.FindStringSubmatch(token); m != nil {
		return scale(m[1], 10)
	}
	if m := reAudience.FindStringSubmatch(token); m != nil {
		// Bare decimal audience score, 0.0-5.0 at the start of the
		// token. A digit running into a comma is a grouped count such
		// as "1,234 ratings", not a score.
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil || n > 5 {
			return 0, false
		}
		return int(math.Round(n * 20)), true
	}
	return 0, false
}

func scale(numerator string, denominator float64) (int, bool) {
	n, err := strconv.ParseFloat(numerator, 64)
	if err != nil || n < 0 || n > denominator {
		return 0, false
	}
	return int(math.Round(n / denominator * 100)), true
}

// ParseRatingsCount pulls the count out of a trailing "<N> ratings"
// token.
func ParseRatingsCount(text string) (int, bool) {
	m := reRatingsCount.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0, false
	}
	return v, true
}
