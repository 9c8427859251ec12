package knowledge

import (
	"strings"

	"concierge-api/internal/domain/entity"
)

// NoResultsMessage is returned in place of an empty context block so the
// conversation agent can branch on Found instead of string emptiness.
const NoResultsMessage = "I couldn't find specific information about that in the hotel's documents."

const (
	// maxContextEntries bounds the context block handed to the language
	// model, which keeps prompt size predictable.
	maxContextEntries = 3
	excerptLength     = 300
)

// SearchOutcome is the formatted result of one retrieval request: the
// machine-readable ranked results plus a context block ready for
// natural-language generation.
type SearchOutcome struct {
	Success    bool                  `json:"success"`
	Found      bool                  `json:"found"`
	SearchType entity.SearchType     `json:"searchType"`
	Count      int                   `json:"count"`
	Results    []entity.SearchResult `json:"results"`
	Context    string                `json:"context"`
}

func formatOutcome(searchType entity.SearchType, results []entity.SearchResult) *SearchOutcome {
	outcome := &SearchOutcome{
		Success:    true,
		SearchType: searchType,
		Count:      len(results),
		Results:    results,
	}

	if len(results) == 0 {
		outcome.Context = NoResultsMessage
		return outcome
	}

	outcome.Found = true

	top := results
	if len(top) > maxContextEntries {
		top = top[:maxContextEntries]
	}

	entries := make([]string, 0, len(top))
	for _, r := range top {
		entries = append(entries, r.Title+": "+r.Excerpt)
	}
	outcome.Context = strings.Join(entries, "\n\n")

	return outcome
}

// excerpt truncates content at a rune boundary for display.
func excerpt(content string, limit int) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
