// Package scoring implements keyword relevance scoring, exclusion filtering
// and tier classification for tender postings.
package scoring

import "strings"

// ContainsExcludeTerm returns true if any exclude term appears
// (case-insensitive) anywhere in the combined title + body text.
//
// Called before scoring — if true, the posting is discarded and counted.
func ContainsExcludeTerm(title, body string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	combined := strings.ToLower(title + " " + body)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
