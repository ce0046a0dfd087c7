package titlemeta

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/netflixcritic/checker/internal/catalog"
)

// Section type markers inside the payload's section list.
const (
	sectionSeasons     = "seasonsAndEpisodes"
	sectionMoreDetails = "moreDetails"
)

// ExtractError reports a malformed payload. The identifier's task fails
// alone; siblings in the batch are unaffected.
type ExtractError struct {
	Stage string
	Err   error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Stage, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// Section is one element of the payload's section list. Data stays raw
// because section shapes are heterogeneous; each consumer decodes the
// shape it expects and tolerates mismatches.
type Section struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type heroDetails struct {
	Details []struct {
		Data heroObject `json:"data"`
	} `json:"details"`
}

type heroObject struct {
	Title   string `json:"title"`
	Year    int    `json:"year"`
	Runtime *int   `json:"runtime"` // shows carry runtime on episodes, not here
}

type seasonsData struct {
	Seasons []struct {
		Episodes []struct {
			Year int `json:"year"`
		} `json:"episodes"`
	} `json:"seasons"`
}

type moreDetailsData struct {
	Type string `json:"type"`
}

// Parse decodes the evaluated payload into its section list.
func Parse(raw []byte) ([]Section, error) {
	var sections []Section
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, &ExtractError{Stage: "sections", Err: err}
	}
	return sections, nil
}

// Extract builds the metadata record from a parsed payload. Pure, no
// I/O. A missing or malformed hero object yields an empty record, not
// an error: a single busted page must not fail its batch.
func Extract(id catalog.ID, raw []byte) (catalog.Metadata, error) {
	sections, err := Parse(raw)
	if err != nil {
		return catalog.Metadata{ID: id}, err
	}

	md := catalog.Metadata{ID: id, Raw: raw}

	hero, ok := heroOf(sections)
	if !ok {
		return md, nil
	}
	md.Title = hero.Title
	md.Runtime = hero.Runtime
	md.ReleaseYear = reconcileReleaseYear(sections, hero.Year)
	md.ContentType = contentTypeOf(sections)
	return md, nil
}

// heroOf returns the hero detail object: the first element of the first
// section's details list.
func heroOf(sections []Section) (heroObject, bool) {
	if len(sections) == 0 {
		return heroObject{}, false
	}
	var d heroDetails
	if err := json.Unmarshal(sections[0].Data, &d); err != nil {
		return heroObject{}, false
	}
	if len(d.Details) == 0 {
		return heroObject{}, false
	}
	return d.Details[0].Data, true
}

// reconcileReleaseYear scans every episode of every season and keeps the
// minimum year greater than 1900 that improves on the hero year. Some
// hero objects carry the year of the latest season; the true release
// year is the earliest episode's.
func reconcileReleaseYear(sections []Section, releaseYear int) int {
	for _, section := range sections {
		if section.Type != sectionSeasons {
			continue
		}
		var data seasonsData
		if err := json.Unmarshal(section.Data, &data); err != nil {
			return releaseYear
		}
		for _, season := range data.Seasons {
			for _, episode := range season.Episodes {
				if episode.Year > 1900 && episode.Year < releaseYear {
					releaseYear = episode.Year
				}
			}
		}
	}
	return releaseYear
}

// contentTypeOf maps the internal content-type token to the public
// vocabulary.
func contentTypeOf(sections []Section) string {
	for _, section := range sections {
		if section.Type != sectionMoreDetails {
			continue
		}
		var data moreDetailsData
		if err := json.Unmarshal(section.Data, &data); err != nil {
			return ""
		}
		return strings.ReplaceAll(data.Type, "show", "tv series")
	}
	return ""
}
