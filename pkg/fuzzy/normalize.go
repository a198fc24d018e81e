// Package fuzzy provides text normalization and token-set similarity for
// matching noisy song titles and artist credits across data sources.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	punctRegex      = regexp.MustCompile(`[()\[\]{}.,!'"]`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Normalize lowercases a string, folds accented characters to their base
// form, replaces punctuation with spaces and collapses whitespace runs.
func Normalize(s string) string {
	s = norm.NFKD.String(s)

	var b strings.Builder
	for _, r := range s {
		if !unicode.IsMark(r) {
			b.WriteRune(r)
		}
	}
	s = strings.ToLower(b.String())

	s = punctRegex.ReplaceAllString(s, " ")
	s = whitespaceRegex.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// TokenSetSimilarity returns the Jaccard overlap of the unique word sets of
// both strings after normalization, in [0,1]. Word order is ignored because
// title and artist credit ordering is unreliable between catalogs
// ("Artist1, Artist2" vs "Artist2 feat. Artist1"). Returns 0 when either
// string normalizes to nothing.
func TokenSetSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	normalized := Normalize(s)
	if normalized == "" {
		return nil
	}

	set := make(map[string]struct{})
	for _, token := range strings.Fields(normalized) {
		set[token] = struct{}{}
	}
	return set
}
