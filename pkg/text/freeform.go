// Package text parses loosely formatted song references like
// "Title by Artist" or "Title - Artist1, Artist2" into their components.
package text

import (
	"regexp"
	"strings"
)

var (
	// separatorRegex matches the title/artist boundary in free-form input.
	separatorRegex = regexp.MustCompile(`(?i)\s+by\s+|\s+-\s+|\s+–\s+|\s+—\s+|\s*\|\s*`)

	// artistSplitRegex splits a credit string into individual artist names.
	artistSplitRegex = regexp.MustCompile(`(?i),|&|feat\.?|ft\.?|with`)
)

// Parse splits a free-form song reference into a title and an ordered list
// of artist names. When no separator is present, the whole string is the
// title and artists is nil so callers can tell "no artist info" apart from
// an explicitly empty credit. Malformed input never fails; it degrades to
// treating the entire string as the title.
func Parse(input string) (title string, artists []string) {
	parts := separatorRegex.Split(input, -1)

	title = strings.TrimSpace(parts[0])
	if len(parts) < 2 {
		return title, nil
	}

	for _, fragment := range artistSplitRegex.Split(parts[1], -1) {
		if name := strings.TrimSpace(fragment); name != "" {
			artists = append(artists, name)
		}
	}

	return title, artists
}
