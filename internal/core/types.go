package core

import (
	"context"
	"errors"
)

// ErrSeedNotFound is returned when the seed song cannot be resolved on the
// catalog; without a seed track no recommendations can be produced.
var ErrSeedNotFound = errors.New("seed track not found")

// Track is the catalog's view of a song. It is owned by the catalog client;
// the resolver and orchestrator only read it.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album,omitempty"`
	URI        string   `json:"uri"`
	Popularity int      `json:"popularity"`
	PreviewURL string   `json:"preview_url,omitempty"`
	ImageURL   string   `json:"image_url,omitempty"`
}

// Device is a playback endpoint known to the catalog.
type Device struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// SeedDescriptor carries the resolved seed song metadata handed to the
// suggester and verifier. Built once per request and immutable afterward.
type SeedDescriptor struct {
	Title   string
	Artists []string
	Genre   string
}

// SongSuggestion is one song proposed by the suggester.
type SongSuggestion struct {
	Title   string   `json:"title"`
	Artists []string `json:"artists"`
	Genre   string   `json:"genre,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// VerificationResult is the verifier's judgment for one resolved suggestion.
type VerificationResult struct {
	IsValid    bool    `json:"is_valid"`
	Confidence float64 `json:"confidence_score"`
	Reason     string  `json:"reason,omitempty"`
}

// ResolvedSuggestion pairs a suggestion with the catalog track it resolved to.
type ResolvedSuggestion struct {
	Suggestion SongSuggestion
	Track      Track
}

// ResolutionOutcome is the result of one resolve call: the best-scoring
// candidate and its match score. A nil outcome means "no match", which is a
// defined result rather than an error.
type ResolutionOutcome struct {
	Track Track
	Score float64
}

// Recommendation is one accepted entry of the final recommendation list.
type Recommendation struct {
	Suggestion   SongSuggestion      `json:"suggestion"`
	Track        Track               `json:"track"`
	Verification *VerificationResult `json:"verification,omitempty"`
	MatchScore   float64             `json:"match_score"`
	InQueue      bool                `json:"in_queue"`
}

// RecommendationResult is the outcome of one full recommendation request.
type RecommendationResult struct {
	Seed            Track            `json:"seed"`
	Recommendations []Recommendation `json:"recommendations"`
	TotalFound      int              `json:"total_found"`
	TotalVerified   int              `json:"total_verified"`
	TotalRejected   int              `json:"total_rejected"`
	TotalDuplicates int              `json:"total_duplicates"`
	TotalQueued     int              `json:"total_queued"`
}

// CatalogClient is the music catalog capability the pipeline consumes.
type CatalogClient interface {
	Search(ctx context.Context, query string, limit int) ([]Track, error)
	AddToQueue(ctx context.Context, uri string) error
	ListDevices(ctx context.Context) ([]Device, error)
	EnsureActiveDevice(ctx context.Context, seedURI string) (*Device, error)
	StartPlayback(ctx context.Context, uri string) error
}

// TrackResolver maps a free-form title/artist guess to a concrete catalog
// track, or nil when nothing scores above the accept threshold.
type TrackResolver interface {
	Resolve(ctx context.Context, freeform string, artists []string) (*ResolutionOutcome, error)
}

// Suggester produces song suggestions for a seed. It fails with an error
// when it cannot produce valid structured output.
type Suggester interface {
	Suggest(ctx context.Context, seed SeedDescriptor, count int) ([]SongSuggestion, error)
}

// Verifier judges whether resolved suggestions fit the seed. Implementations
// never fail the caller: internal errors degrade to a permissive default so
// one verifier failure cannot block unrelated suggestions.
type Verifier interface {
	Verify(ctx context.Context, seed SeedDescriptor, pair ResolvedSuggestion) VerificationResult
	VerifyBatch(ctx context.Context, seed SeedDescriptor, pairs []ResolvedSuggestion) []VerificationResult
}

// DedupStore remembers track IDs recommended in earlier requests.
type DedupStore interface {
	Has(trackID string) bool
	Add(trackID string)
	Load(trackIDs []string)
	Size() int
}

// HistoryStore persists the recommendations produced for each seed.
type HistoryStore interface {
	Record(ctx context.Context, seed Track, rec Recommendation) error
	RecentTrackIDs(ctx context.Context, limit int) ([]string, error)
	Close() error
}
