package resolver

import (
	"strings"

	"mixcue/internal/core"
	"mixcue/pkg/fuzzy"
)

// Scoring weights. Title similarity dominates, artist overlap refines, and
// popularity is a small tiebreaker between otherwise equal candidates.
const (
	titleWeight      = 0.65
	artistWeight     = 0.30
	popularityWeight = 0.05

	// noArtistPrior is the artist score assumed when the caller gave no
	// artists. Deliberately below neutral so explicit artist matches win.
	noArtistPrior = 0.20

	// prefixBonus rewards candidates whose normalized title starts with the
	// first prefixLength runes of the wanted title. Covers remixes and
	// extended edits that share the opening of the name.
	prefixBonus  = 0.05
	prefixLength = 10
)

// Score rates how well a candidate track matches the wanted title and
// artists. The result is in [0, 1]; higher is better.
func Score(title string, artists []string, candidate core.Track) float64 {
	normTitle := fuzzy.Normalize(title)
	normCandidate := fuzzy.Normalize(candidate.Name)

	titleScore := fuzzy.TokenSetSimilarity(normTitle, normCandidate)
	artistScore := scoreArtists(artists, candidate.Artists)
	popScore := float64(candidate.Popularity) / 100.0

	score := titleWeight*titleScore + artistWeight*artistScore + popularityWeight*popScore

	prefix := normTitle
	if runes := []rune(prefix); len(runes) > prefixLength {
		prefix = string(runes[:prefixLength])
	}
	if strings.HasPrefix(normCandidate, prefix) {
		score += prefixBonus
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// scoreArtists compares the wanted artists against the candidate's. Both the
// joined strings and each wanted artist individually are tried, and the best
// similarity wins, so "A feat. B" still matches a candidate credited to "A".
func scoreArtists(wanted, got []string) float64 {
	if len(wanted) == 0 {
		return noArtistPrior
	}

	wantedJoined := fuzzy.Normalize(strings.Join(wanted, " "))
	gotJoined := fuzzy.Normalize(strings.Join(got, " "))

	best := fuzzy.TokenSetSimilarity(wantedJoined, gotJoined)
	for _, artist := range wanted {
		if s := fuzzy.TokenSetSimilarity(fuzzy.Normalize(artist), gotJoined); s > best {
			best = s
		}
	}
	return best
}
