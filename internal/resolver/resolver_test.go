package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"mixcue/internal/core"
)

// mockSearcher returns canned results per query and records every query it
// receives, including retried ones.
type mockSearcher struct {
	results  map[string][]core.Track
	errs     map[string]error
	failOnce map[string]error
	queries  []string
}

func (m *mockSearcher) Search(_ context.Context, query string, _ int) ([]core.Track, error) {
	m.queries = append(m.queries, query)
	if err, ok := m.failOnce[query]; ok {
		delete(m.failOnce, query)
		return nil, err
	}
	if err, ok := m.errs[query]; ok {
		return nil, err
	}
	return m.results[query], nil
}

func testConfig() core.ResolverConfig {
	return core.ResolverConfig{
		AcceptThreshold:    0.45,
		EarlyExitThreshold: 0.75,
		SearchLimit:        20,
		SearchRetries:      2,
		SearchRetryDelay:   time.Millisecond,
	}
}

func newTestResolver(s Searcher) *Resolver {
	return New(s, testConfig(), zap.NewNop())
}

func TestResolveEarlyExitStopsQueryLadder(t *testing.T) {
	searcher := &mockSearcher{
		results: map[string][]core.Track{
			`track:"Lahore" artist:"Guru Randhawa"`: {
				{ID: "t1", Name: "Lahore", Artists: []string{"Guru Randhawa"}, Popularity: 90},
			},
		},
	}

	outcome, err := newTestResolver(searcher).Resolve(context.Background(), "Lahore by Guru Randhawa", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if outcome == nil || outcome.Track.ID != "t1" {
		t.Fatalf("Resolve() outcome = %+v, want track t1", outcome)
	}
	if len(searcher.queries) != 1 {
		t.Errorf("queries executed = %d (%v), want 1 after early exit", len(searcher.queries), searcher.queries)
	}
}

func TestResolveQueryLadderOrder(t *testing.T) {
	searcher := &mockSearcher{}

	_, err := newTestResolver(searcher).Resolve(context.Background(), "Song - Artist1, Artist2", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []string{
		`track:"Song" artist:"Artist1"`,
		`track:"Song" artist:"Artist2"`,
		`track:"Song"`,
		"Song",
	}
	if len(searcher.queries) != len(want) {
		t.Fatalf("queries = %v, want %v", searcher.queries, want)
	}
	for i := range want {
		if searcher.queries[i] != want[i] {
			t.Errorf("query[%d] = %q, want %q", i, searcher.queries[i], want[i])
		}
	}
}

func TestResolveExplicitArtistsOverrideParsed(t *testing.T) {
	searcher := &mockSearcher{}

	_, err := newTestResolver(searcher).Resolve(context.Background(), "Closer by Wrong Artist", []string{"Halsey"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(searcher.queries) == 0 || searcher.queries[0] != `track:"Closer" artist:"Halsey"` {
		t.Errorf("first query = %v, want explicit artist to win over parsed one", searcher.queries)
	}
}

func TestResolveRejectsBelowAcceptThreshold(t *testing.T) {
	searcher := &mockSearcher{
		results: map[string][]core.Track{
			"Completely Different Song": {
				{ID: "t1", Name: "Nothing Alike", Artists: []string{"Nobody"}, Popularity: 10},
			},
		},
	}

	outcome, err := newTestResolver(searcher).Resolve(context.Background(), "Completely Different Song", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if outcome != nil {
		t.Errorf("Resolve() = %+v, want nil outcome for low-scoring candidates", outcome)
	}
}

func TestResolveKeepsBestAcrossQueries(t *testing.T) {
	weak := core.Track{ID: "weak", Name: "Shape", Artists: []string{"Ed Sheeran"}, Popularity: 50}
	strong := core.Track{ID: "strong", Name: "Shape of You", Artists: []string{"Ed Sheeran"}, Popularity: 80}

	searcher := &mockSearcher{
		results: map[string][]core.Track{
			`track:"Shape of You" artist:"Ed Sheeran"`: {weak},
			`track:"Shape of You"`:                     {strong},
		},
	}

	outcome, err := newTestResolver(searcher).Resolve(context.Background(), "Shape of You by Ed Sheeran", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if outcome == nil || outcome.Track.ID != "strong" {
		t.Fatalf("Resolve() outcome = %+v, want the higher-scoring later candidate", outcome)
	}
}

func TestResolveRetriesFailedSearch(t *testing.T) {
	track := core.Track{ID: "t1", Name: "Lahore", Artists: []string{"Guru Randhawa"}, Popularity: 90}
	query := `track:"Lahore" artist:"Guru Randhawa"`

	searcher := &mockSearcher{
		results:  map[string][]core.Track{query: {track}},
		failOnce: map[string]error{query: errors.New("rate limited")},
	}

	outcome, err := newTestResolver(searcher).Resolve(context.Background(), "Lahore by Guru Randhawa", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if outcome == nil || outcome.Track.ID != "t1" {
		t.Fatalf("Resolve() outcome = %+v, want match after retry", outcome)
	}
	if len(searcher.queries) != 2 {
		t.Errorf("search calls = %d, want 2 (one failure, one retry)", len(searcher.queries))
	}
}

func TestResolveSearchErrorsDegradeToNoMatch(t *testing.T) {
	boom := errors.New("catalog down")
	searcher := &mockSearcher{
		errs: map[string]error{
			`track:"Lahore"`: boom,
			"Lahore":         boom,
		},
	}

	outcome, err := newTestResolver(searcher).Resolve(context.Background(), "Lahore", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v, search failures must not surface as errors", err)
	}
	if outcome != nil {
		t.Errorf("Resolve() = %+v, want nil outcome when every search fails", outcome)
	}
}

func TestResolveContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := newTestResolver(&mockSearcher{}).Resolve(ctx, "Lahore", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve() error = %v, want context.Canceled", err)
	}
	if outcome != nil {
		t.Errorf("Resolve() = %+v, want nil outcome on cancellation", outcome)
	}
}
