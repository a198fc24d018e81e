// Package resolver maps free-form song descriptions to concrete catalog
// tracks using a sequence of increasingly loose search queries and a weighted
// fuzzy match score.
package resolver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mixcue/internal/core"
	"mixcue/pkg/text"
)

// Searcher is the slice of the catalog the resolver needs.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]core.Track, error)
}

type Resolver struct {
	searcher Searcher
	cfg      core.ResolverConfig
	log      *zap.Logger
}

func New(searcher Searcher, cfg core.ResolverConfig, log *zap.Logger) *Resolver {
	return &Resolver{
		searcher: searcher,
		cfg:      cfg,
		log:      log,
	}
}

// Resolve finds the catalog track best matching a free-form song description.
// Explicitly passed artists take precedence over artists parsed out of the
// description. A nil outcome means no candidate scored above the accept
// threshold; the error return is reserved for context cancellation.
func (r *Resolver) Resolve(ctx context.Context, freeform string, artists []string) (*core.ResolutionOutcome, error) {
	title, parsedArtists := text.Parse(freeform)
	if len(artists) == 0 {
		artists = parsedArtists
	}

	var (
		bestTrack core.Track
		bestScore float64
		found     bool
	)

	for _, query := range r.queries(title, artists) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates := r.search(ctx, query)
		for _, candidate := range candidates {
			score := Score(title, artists, candidate)
			if !found || score > bestScore {
				bestTrack = candidate
				bestScore = score
				found = true
			}
		}

		if found && bestScore >= r.cfg.EarlyExitThreshold {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !found || bestScore < r.cfg.AcceptThreshold {
		r.log.Debug("no acceptable match",
			zap.String("title", title),
			zap.Strings("artists", artists),
			zap.Float64("best_score", bestScore))
		return nil, nil
	}

	r.log.Debug("resolved track",
		zap.String("title", title),
		zap.String("track_id", bestTrack.ID),
		zap.String("track_name", bestTrack.Name),
		zap.Float64("score", bestScore))

	return &core.ResolutionOutcome{Track: bestTrack, Score: bestScore}, nil
}

// queries builds the search query ladder, most specific first: a fielded
// query per artist, then a fielded title-only query, then the raw title.
func (r *Resolver) queries(title string, artists []string) []string {
	queries := make([]string, 0, len(artists)+2)
	for _, artist := range artists {
		queries = append(queries, fmt.Sprintf("track:%q artist:%q", title, artist))
	}
	queries = append(queries, fmt.Sprintf("track:%q", title), title)
	return queries
}

// search runs one catalog query with retries. Search failures are logged and
// degrade to an empty result set so the next query in the ladder still runs.
func (r *Resolver) search(ctx context.Context, query string) []core.Track {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.SearchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.cfg.SearchRetryDelay):
			}
		}

		tracks, err := r.searcher.Search(ctx, query, r.cfg.SearchLimit)
		if err == nil {
			return tracks
		}
		lastErr = err
	}

	r.log.Warn("search failed",
		zap.String("query", query),
		zap.Int("attempts", r.cfg.SearchRetries+1),
		zap.Error(lastErr))
	return nil
}
