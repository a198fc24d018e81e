package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Progress event types emitted while a recommendation request runs.
const (
	EventStatus    = "status"
	EventSeed      = "seed"
	EventSkipped   = "skipped"
	EventDuplicate = "duplicate"
	EventRejected  = "rejected"
	EventTrack     = "track"
	EventComplete  = "complete"
	EventError     = "error"
)

type ProgressEvent struct {
	Type           string                `json:"type"`
	Message        string                `json:"message,omitempty"`
	Track          *Track                `json:"track,omitempty"`
	Suggestion     *SongSuggestion       `json:"suggestion,omitempty"`
	Recommendation *Recommendation       `json:"recommendation,omitempty"`
	Result         *RecommendationResult `json:"result,omitempty"`
}

// ProgressFunc receives pipeline progress events. May be nil.
type ProgressFunc func(ProgressEvent)

// RecommendRequest describes one recommendation run.
type RecommendRequest struct {
	Song     string   `json:"song"`
	Artists  []string `json:"artists,omitempty"`
	Count    int      `json:"count,omitempty"`
	Verify   *bool    `json:"verify,omitempty"`
	DryRun   bool     `json:"dry_run,omitempty"`
	Autoplay bool     `json:"autoplay,omitempty"`
}

// Orchestrator runs the recommendation pipeline: resolve the seed, ask the
// suggester for similar songs, resolve each suggestion on the catalog,
// verify the batch, then queue what survived.
type Orchestrator struct {
	config    *Config
	catalog   CatalogClient
	resolver  TrackResolver
	suggester Suggester
	verifier  Verifier
	dedup     DedupStore
	history   HistoryStore
	logger    *zap.Logger
}

// NewOrchestrator wires the pipeline. verifier, dedup and history may be nil;
// the corresponding steps are skipped.
func NewOrchestrator(
	config *Config,
	catalog CatalogClient,
	resolver TrackResolver,
	suggester Suggester,
	verifier Verifier,
	dedup DedupStore,
	history HistoryStore,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		config:    config,
		catalog:   catalog,
		resolver:  resolver,
		suggester: suggester,
		verifier:  verifier,
		dedup:     dedup,
		history:   history,
		logger:    logger,
	}
}

// WarmDedup seeds the duplicate filter from persisted history.
func (o *Orchestrator) WarmDedup(ctx context.Context) error {
	if o.dedup == nil || o.history == nil {
		return nil
	}

	ids, err := o.history.RecentTrackIDs(ctx, o.config.Store.DedupCapacity)
	if err != nil {
		return fmt.Errorf("failed to load recommendation history: %w", err)
	}

	o.dedup.Load(ids)
	o.logger.Info("dedup store warmed", zap.Int("tracks", len(ids)))
	return nil
}

// Recommend runs the full pipeline for one request. Recommendations come
// back in suggestion order. An unresolvable seed returns ErrSeedNotFound.
func (o *Orchestrator) Recommend(ctx context.Context, req RecommendRequest, progress ProgressFunc) (*RecommendationResult, error) {
	emit := func(ev ProgressEvent) {
		if progress != nil {
			progress(ev)
		}
	}

	count := req.Count
	if count <= 0 {
		count = o.config.App.Count
	}
	verify := o.config.App.Verify
	if req.Verify != nil {
		verify = *req.Verify
	}

	emit(ProgressEvent{Type: EventStatus, Message: "Resolving seed song..."})

	seedOutcome, err := o.resolver.Resolve(ctx, req.Song, req.Artists)
	if err != nil {
		return nil, err
	}
	if seedOutcome == nil {
		return nil, fmt.Errorf("%w: %s", ErrSeedNotFound, req.Song)
	}
	seed := seedOutcome.Track

	o.logger.Info("seed resolved",
		zap.String("input", req.Song),
		zap.String("track", seed.Name),
		zap.Float64("score", seedOutcome.Score))
	emit(ProgressEvent{Type: EventSeed, Track: &seed})

	descriptor := SeedDescriptor{Title: seed.Name, Artists: seed.Artists}

	emit(ProgressEvent{Type: EventStatus, Message: "Requesting suggestions..."})
	suggestions, err := o.suggest(ctx, descriptor, count)
	if err != nil {
		return nil, err
	}

	emit(ProgressEvent{Type: EventStatus, Message: "Resolving suggestions..."})
	pairs, skipped := o.resolveSuggestions(ctx, suggestions, emit)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &RecommendationResult{
		Seed:       seed,
		TotalFound: len(suggestions),
	}

	pairs, duplicates := o.dropDuplicates(seed, pairs, emit)
	result.TotalDuplicates = duplicates

	verdicts := o.verify(ctx, verify, descriptor, pairs, emit)

	for i, pair := range pairs {
		rec := Recommendation{
			Suggestion: pair.resolved.Suggestion,
			Track:      pair.resolved.Track,
			MatchScore: pair.score,
		}
		if verdicts != nil {
			verdict := verdicts[i]
			rec.Verification = &verdict
			result.TotalVerified++
			if !verdict.IsValid {
				result.TotalRejected++
				o.logger.Info("suggestion rejected",
					zap.String("track", rec.Track.Name),
					zap.String("reason", verdict.Reason))
				emit(ProgressEvent{Type: EventRejected, Recommendation: &rec})
				continue
			}
		}
		result.Recommendations = append(result.Recommendations, rec)
	}

	if !req.DryRun {
		result.TotalQueued = o.queue(ctx, seed, req.Autoplay, result.Recommendations, emit)
	}

	o.remember(ctx, seed, result.Recommendations)

	for i := range result.Recommendations {
		emit(ProgressEvent{Type: EventTrack, Recommendation: &result.Recommendations[i]})
	}
	emit(ProgressEvent{Type: EventComplete, Result: result})

	o.logger.Info("recommendation run complete",
		zap.String("seed", seed.Name),
		zap.Int("found", result.TotalFound),
		zap.Int("accepted", len(result.Recommendations)),
		zap.Int("rejected", result.TotalRejected),
		zap.Int("unresolved", skipped),
		zap.Int("duplicates", result.TotalDuplicates),
		zap.Int("queued", result.TotalQueued))

	return result, nil
}

// suggest retries the suggester a bounded number of times. Exhausting the
// retries fails the whole request; without suggestions there is nothing to do.
func (o *Orchestrator) suggest(ctx context.Context, seed SeedDescriptor, count int) ([]SongSuggestion, error) {
	var lastErr error
	for attempt := 1; attempt <= o.config.App.SuggestRetries; attempt++ {
		suggestions, err := o.suggester.Suggest(ctx, seed, count)
		if err == nil {
			return suggestions, nil
		}
		lastErr = err

		o.logger.Warn("suggestion attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.config.App.SuggestRetries),
			zap.Error(err))

		if attempt == o.config.App.SuggestRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.config.App.SuggestRetryDelay):
		}
	}
	return nil, fmt.Errorf("failed to get suggestions after %d attempts: %w", o.config.App.SuggestRetries, lastErr)
}

type scoredPair struct {
	resolved ResolvedSuggestion
	score    float64
}

// resolveSuggestions resolves all suggestions concurrently. Results keep
// suggestion order; suggestions that resolve to nothing are dropped and
// reported as skipped.
func (o *Orchestrator) resolveSuggestions(ctx context.Context, suggestions []SongSuggestion, emit ProgressFunc) ([]scoredPair, int) {
	outcomes := make([]*ResolutionOutcome, len(suggestions))

	g, gctx := errgroup.WithContext(ctx)
	for i, suggestion := range suggestions {
		g.Go(func() error {
			outcome, err := o.resolver.Resolve(gctx, suggestion.Title, suggestion.Artists)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Resolve only errors on context cancellation; the caller checks
		// ctx.Err and unwinds.
		return nil, 0
	}

	var pairs []scoredPair
	skipped := 0
	for i, outcome := range outcomes {
		if outcome == nil {
			skipped++
			o.logger.Info("suggestion not found on catalog",
				zap.String("title", suggestions[i].Title))
			emit(ProgressEvent{Type: EventSkipped, Suggestion: &suggestions[i]})
			continue
		}
		pairs = append(pairs, scoredPair{
			resolved: ResolvedSuggestion{Suggestion: suggestions[i], Track: outcome.Track},
			score:    outcome.Score,
		})
	}
	return pairs, skipped
}

// dropDuplicates filters out the seed itself and anything the dedup store
// has already seen.
func (o *Orchestrator) dropDuplicates(seed Track, pairs []scoredPair, emit ProgressFunc) ([]scoredPair, int) {
	kept := pairs[:0]
	duplicates := 0
	for _, pair := range pairs {
		trackID := pair.resolved.Track.ID
		if trackID == seed.ID || (o.dedup != nil && o.dedup.Has(trackID)) {
			duplicates++
			emit(ProgressEvent{Type: EventDuplicate, Track: &pair.resolved.Track})
			continue
		}
		kept = append(kept, pair)
	}
	return kept, duplicates
}

// verify returns one verdict per pair, or nil when verification is disabled.
func (o *Orchestrator) verify(ctx context.Context, enabled bool, seed SeedDescriptor, pairs []scoredPair, emit ProgressFunc) []VerificationResult {
	if !enabled || o.verifier == nil || len(pairs) == 0 {
		return nil
	}

	emit(ProgressEvent{Type: EventStatus, Message: "Verifying recommendations..."})

	resolved := make([]ResolvedSuggestion, len(pairs))
	for i, pair := range pairs {
		resolved[i] = pair.resolved
	}

	verdicts := o.verifier.VerifyBatch(ctx, seed, resolved)
	for len(verdicts) < len(pairs) {
		verdicts = append(verdicts, VerificationResult{
			IsValid:    true,
			Confidence: 0.5,
			Reason:     "Missing result",
		})
	}
	return verdicts[:len(pairs)]
}

// queue adds the accepted recommendations to the playback queue, marking
// each successfully queued entry. Queue failures degrade per-track.
func (o *Orchestrator) queue(ctx context.Context, seed Track, autoplay bool, recs []Recommendation, emit ProgressFunc) int {
	if len(recs) == 0 {
		return 0
	}

	device, err := o.catalog.EnsureActiveDevice(ctx, seed.URI)
	if err != nil {
		o.logger.Warn("failed to ensure active device", zap.Error(err))
		return 0
	}
	if device == nil {
		o.logger.Warn("no playback device, skipping queueing")
		emit(ProgressEvent{Type: EventStatus, Message: "No playback device available, skipping queue."})
		return 0
	}

	if autoplay {
		if err := o.catalog.StartPlayback(ctx, seed.URI); err != nil {
			o.logger.Warn("failed to start seed playback", zap.Error(err))
		}
	}

	emit(ProgressEvent{Type: EventStatus, Message: "Adding songs to queue..."})

	queued := 0
	for i := range recs {
		if err := o.addToQueue(ctx, recs[i].Track.URI); err != nil {
			o.logger.Warn("failed to queue track",
				zap.String("track", recs[i].Track.Name),
				zap.Error(err))
			continue
		}
		recs[i].InQueue = true
		queued++

		select {
		case <-ctx.Done():
			return queued
		case <-time.After(o.config.App.QueuePause):
		}
	}
	return queued
}

// addToQueue retries once; queue calls right after a playback transfer
// occasionally race the device becoming active.
func (o *Orchestrator) addToQueue(ctx context.Context, uri string) error {
	err := o.catalog.AddToQueue(ctx, uri)
	if err == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.config.App.QueuePause):
	}
	return o.catalog.AddToQueue(ctx, uri)
}

func (o *Orchestrator) remember(ctx context.Context, seed Track, recs []Recommendation) {
	for i := range recs {
		if o.dedup != nil {
			o.dedup.Add(recs[i].Track.ID)
		}
		if o.history != nil {
			if err := o.history.Record(ctx, seed, recs[i]); err != nil {
				o.logger.Warn("failed to record history", zap.Error(err))
			}
		}
	}
}
