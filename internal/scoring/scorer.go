// Package scoring rates documents against a fixed keyword list.
package scoring

import (
	"strings"

	"golang.org/x/text/cases"
)

// Scorer counts keyword occurrences in a document's searchable text
type Scorer struct {
	keywords []string
}

// New builds a Scorer for the given keywords. Keywords are case folded once
// and otherwise kept as given; empty entries never match.
func New(keywords []string) *Scorer {
	folder := cases.Fold()
	folded := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		folded = append(folded, folder.String(keyword))
	}
	return &Scorer{keywords: folded}
}

// Keywords returns the folded keyword list
func (s *Scorer) Keywords() []string {
	return append([]string(nil), s.keywords...)
}

// Score returns the summed, case-insensitive occurrence count of every keyword
// in text. Each keyword is counted on its own, so a match for one keyword
// does not hide a match for another that overlaps it.
func (s *Scorer) Score(text string) int {
	if len(s.keywords) == 0 || text == "" {
		return 0
	}

	folded := cases.Fold().String(text)
	score := 0
	for _, keyword := range s.keywords {
		score += strings.Count(folded, keyword)
	}
	return score
}
