package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

type mockCatalog struct {
	devices     []Device
	queued      []string
	played      []string
	queueFails  map[string]int
	deviceErr   error
	transferred bool
}

func (m *mockCatalog) Search(_ context.Context, _ string, _ int) ([]Track, error) {
	return nil, nil
}

func (m *mockCatalog) AddToQueue(_ context.Context, uri string) error {
	if n := m.queueFails[uri]; n > 0 {
		m.queueFails[uri] = n - 1
		return errors.New("queue busy")
	}
	m.queued = append(m.queued, uri)
	return nil
}

func (m *mockCatalog) ListDevices(_ context.Context) ([]Device, error) {
	return m.devices, nil
}

func (m *mockCatalog) EnsureActiveDevice(_ context.Context, _ string) (*Device, error) {
	if m.deviceErr != nil {
		return nil, m.deviceErr
	}
	for i := range m.devices {
		if m.devices[i].Active {
			return &m.devices[i], nil
		}
	}
	if len(m.devices) == 0 {
		return nil, nil
	}
	m.transferred = true
	return &m.devices[0], nil
}

func (m *mockCatalog) StartPlayback(_ context.Context, uri string) error {
	m.played = append(m.played, uri)
	return nil
}

// mockResolver resolves by exact title lookup.
type mockResolver struct {
	outcomes map[string]*ResolutionOutcome
}

func (m *mockResolver) Resolve(_ context.Context, freeform string, _ []string) (*ResolutionOutcome, error) {
	return m.outcomes[freeform], nil
}

type mockSuggester struct {
	suggestions []SongSuggestion
	failures    int
	calls       int
}

func (m *mockSuggester) Suggest(_ context.Context, _ SeedDescriptor, _ int) ([]SongSuggestion, error) {
	m.calls++
	if m.failures > 0 {
		m.failures--
		return nil, errors.New("bad model output")
	}
	return m.suggestions, nil
}

type mockVerifier struct {
	verdicts []VerificationResult
	calls    int
}

func (m *mockVerifier) Verify(_ context.Context, _ SeedDescriptor, _ ResolvedSuggestion) VerificationResult {
	return VerificationResult{IsValid: true, Confidence: 1}
}

func (m *mockVerifier) VerifyBatch(_ context.Context, _ SeedDescriptor, pairs []ResolvedSuggestion) []VerificationResult {
	m.calls++
	if m.verdicts != nil {
		return m.verdicts
	}
	out := make([]VerificationResult, len(pairs))
	for i := range out {
		out[i] = VerificationResult{IsValid: true, Confidence: 0.9, Reason: "fits"}
	}
	return out
}

type mockDedup struct {
	seen map[string]struct{}
}

func newMockDedup(ids ...string) *mockDedup {
	d := &mockDedup{seen: make(map[string]struct{})}
	for _, id := range ids {
		d.seen[id] = struct{}{}
	}
	return d
}

func (m *mockDedup) Has(id string) bool { _, ok := m.seen[id]; return ok }
func (m *mockDedup) Add(id string)      { m.seen[id] = struct{}{} }
func (m *mockDedup) Load(ids []string) {
	m.seen = make(map[string]struct{})
	for _, id := range ids {
		m.seen[id] = struct{}{}
	}
}
func (m *mockDedup) Size() int { return len(m.seen) }

func testOrchestratorConfig() *Config {
	cfg := DefaultConfig()
	cfg.App.SuggestRetryDelay = time.Millisecond
	cfg.App.QueuePause = time.Millisecond
	return cfg
}

func seedOutcome() *ResolutionOutcome {
	return &ResolutionOutcome{
		Track: Track{ID: "seed", Name: "Lahore", Artists: []string{"Guru Randhawa"}, URI: "spotify:track:seed"},
		Score: 0.95,
	}
}

func suggestionFixtures() ([]SongSuggestion, map[string]*ResolutionOutcome) {
	suggestions := []SongSuggestion{
		{Title: "Song A", Artists: []string{"Artist A"}},
		{Title: "Song B", Artists: []string{"Artist B"}},
		{Title: "Song C", Artists: []string{"Artist C"}},
	}
	outcomes := map[string]*ResolutionOutcome{
		"Lahore": seedOutcome(),
		"Song A": {Track: Track{ID: "a", Name: "Song A", URI: "spotify:track:a"}, Score: 0.8},
		"Song B": {Track: Track{ID: "b", Name: "Song B", URI: "spotify:track:b"}, Score: 0.7},
		"Song C": {Track: Track{ID: "c", Name: "Song C", URI: "spotify:track:c"}, Score: 0.6},
	}
	return suggestions, outcomes
}

func newTestOrchestrator(catalog *mockCatalog, resolver *mockResolver, suggester *mockSuggester, verifier Verifier, dedup DedupStore) *Orchestrator {
	return NewOrchestrator(testOrchestratorConfig(), catalog, resolver, suggester, verifier, dedup, nil, zap.NewNop())
}

func TestRecommendHappyPathKeepsSuggestionOrder(t *testing.T) {
	suggestions, outcomes := suggestionFixtures()
	catalog := &mockCatalog{devices: []Device{{ID: "d1", Name: "Speaker", Active: true}}}

	o := newTestOrchestrator(catalog, &mockResolver{outcomes}, &mockSuggester{suggestions: suggestions}, &mockVerifier{}, newMockDedup())

	result, err := o.Recommend(context.Background(), RecommendRequest{Song: "Lahore"}, nil)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	if result.Seed.ID != "seed" {
		t.Errorf("Seed.ID = %q, want seed", result.Seed.ID)
	}
	if len(result.Recommendations) != 3 {
		t.Fatalf("recommendations = %d, want 3", len(result.Recommendations))
	}
	for i, wantID := range []string{"a", "b", "c"} {
		if result.Recommendations[i].Track.ID != wantID {
			t.Errorf("recommendations[%d].Track.ID = %q, want %q (suggestion order)", i, result.Recommendations[i].Track.ID, wantID)
		}
		if !result.Recommendations[i].InQueue {
			t.Errorf("recommendations[%d].InQueue = false, want true", i)
		}
	}
	if result.TotalFound != 3 || result.TotalVerified != 3 || result.TotalRejected != 0 {
		t.Errorf("counts = %+v", result)
	}
	if result.TotalQueued != 3 || len(catalog.queued) != 3 {
		t.Errorf("TotalQueued = %d, catalog queued %v", result.TotalQueued, catalog.queued)
	}
}

func TestRecommendSeedNotFound(t *testing.T) {
	o := newTestOrchestrator(&mockCatalog{}, &mockResolver{outcomes: map[string]*ResolutionOutcome{}}, &mockSuggester{}, &mockVerifier{}, nil)

	_, err := o.Recommend(context.Background(), RecommendRequest{Song: "Unknown Song"}, nil)
	if !errors.Is(err, ErrSeedNotFound) {
		t.Errorf("Recommend() error = %v, want ErrSeedNotFound", err)
	}
}

func TestRecommendSuggesterRetriesThenFails(t *testing.T) {
	_, outcomes := suggestionFixtures()
	suggester := &mockSuggester{failures: 99}

	o := newTestOrchestrator(&mockCatalog{}, &mockResolver{outcomes}, suggester, &mockVerifier{}, nil)

	_, err := o.Recommend(context.Background(), RecommendRequest{Song: "Lahore"}, nil)
	if err == nil {
		t.Fatal("Recommend() error = nil, want error after suggester exhaustion")
	}
	if suggester.calls != o.config.App.SuggestRetries {
		t.Errorf("suggester calls = %d, want %d", suggester.calls, o.config.App.SuggestRetries)
	}
}

func TestRecommendSuggesterRecoversAfterFailure(t *testing.T) {
	suggestions, outcomes := suggestionFixtures()
	suggester := &mockSuggester{suggestions: suggestions, failures: 1}

	o := newTestOrchestrator(&mockCatalog{devices: []Device{{Active: true}}}, &mockResolver{outcomes}, suggester, &mockVerifier{}, nil)

	result, err := o.Recommend(context.Background(), RecommendRequest{Song: "Lahore"}, nil)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if suggester.calls != 2 {
		t.Errorf("suggester calls = %d, want 2", suggester.calls)
	}
	if len(result.Recommendations) != 3 {
		t.Errorf("recommendations = %d, want 3", len(result.Recommendations))
	}
}

func TestRecommendDropsUnresolvedSuggestions(t *testing.T) {
	suggestions, outcomes := suggestionFixtures()
	delete(outcomes, "Song B")

	o := newTestOrchestrator(&mockCatalog{devices: []Device{{Active: true}}}, &mockResolver{outcomes}, &mockSuggester{suggestions: suggestions}, &mockVerifier{}, nil)

	result, err := o.Recommend(context.Background(), RecommendRequest{Song: "Lahore"}, nil)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(result.Recommendations) != 2 {
		t.Fatalf("recommendations = %d, want 2", len(result.Recommendations))
	}
	if result.Recommendations[0].Track.ID != "a" || result.Recommendations[1].Track.ID != "c" {
		t.Errorf("order after drop = [%s %s], want [a c]",
			result.Recommendations[0].Track.ID, result.Recommendations[1].Track.ID)
	}
	if result.TotalFound != 3 {
		t.Errorf("TotalFound = %d, want 3 (all suggested, not all resolved)", result.TotalFound)
	}
}

func TestRecommendRejectedByVerifier(t *testing.T) {
	suggestions, outcomes := suggestionFixtures()
	verifier := &mockVerifier{verdicts: []VerificationResult{
		{IsValid: true, Confidence: 0.9, Reason: "fits"},
		{IsValid: false, Confidence: 0.2, Reason: "different genre"},
		{IsValid: true, Confidence: 0.8, Reason: "fits"},
	}}

	o := newTestOrchestrator(&mockCatalog{devices: []Device{{Active: true}}}, &mockResolver{outcomes}, &mockSuggester{suggestions: suggestions}, verifier, nil)

	result, err := o.Recommend(context.Background(), RecommendRequest{Song: "Lahore"}, nil)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(result.Recommendations) != 2 {
		t.Fatalf("recommendations = %d, want 2", len(result.Recommendations))
	}
	if result.TotalRejected != 1 || result.TotalVerified != 3 {
		t.Errorf("TotalRejected = %d, TotalVerified = %d", result.TotalRejected, result.TotalVerified)
	}
	if result.Recommendations[0].Track.ID != "a" || result.Recommendations[1].Track.ID != "c" {
		t.Error("rejected entry should be removed without disturbing order")
	}
}

func TestRecommendPadsShortVerifierResponse(t *testing.T) {
	suggestions, outcomes := suggestionFixtures()
	// Verifier only answers for the first song; the rest must default to
	// accepted rather than being dropped.
	verifier := &mockVerifier{verdicts: []VerificationResult{
		{IsValid: true, Confidence: 0.9, Reason: "fits"},
	}}

	o := newTestOrchestrator(&mockCatalog{devices: []Device{{Active: true}}}, &mockResolver{outcomes}, &mockSuggester{suggestions: suggestions}, verifier, nil)

	result, err := o.Recommend(context.Background(), RecommendRequest{Song: "Lahore"}, nil)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(result.Recommendations) != 3 {
		t.Fatalf("recommendations = %d, want 3", len(result.Recommendations))
	}
	for _, rec := range result.Recommendations[1:] {
		if rec.Verification == nil || !rec.Verification.IsValid || rec.Verification.Confidence != 0.5 {
			t.Errorf("padded verification = %+v, want permissive default", rec.Verification)
		}
		if rec.Verification.Reason != "Missing result" {
			t.Errorf("padded reason = %q", rec.Verification.Reason)
		}
	}
}

func TestRecommendVerificationDisabled(t *testing.T) {
	suggestions, outcomes := suggestionFixtures()
	verifier := &mockVerifier{}
	noVerify := false

	o := newTestOrchestrator(&mockCatalog{devices: []Device{{Active: true}}}, &mockResolver{outcomes}, &mockSuggester{suggestions: suggestions}, verifier, nil)

	result, err := o.Recommend(context.Background(), RecommendRequest{Song: "Lahore", Verify: &noVerify}, nil)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if verifier.calls != 0 {
		t.Errorf("verifier calls = %d, want 0 when disabled", verifier.calls)
	}
	if result.TotalVerified != 0 {
		t.Errorf("TotalVerified = %d, want 0", result.TotalVerified)
	}
	for _, rec := range result.Recommendations {
		if rec.Verification != nil {
			t.Errorf("Verification = %+v, want nil when disabled", rec.Verification)
		}
	}
}

func TestRecommendFiltersDuplicatesAndSeed(t *testing.T) {
	suggestions, outcomes := suggestionFixtures()
	// Song B was recommended before; Song C resolves to the seed itself.
	outcomes["Song C"] = &ResolutionOutcome{Track: outcomes["Lahore"].Track, Score: 0.9}
	dedup := newMockDedup("b")

	o := newTestOrchestrator(&mockCatalog{devices: []Device{{Active: true}}}, &mockResolver{outcomes}, &mockSuggester{suggestions: suggestions}, &mockVerifier{}, dedup)

	result, err := o.Recommend(context.Background(), RecommendRequest{Song: "Lahore"}, nil)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(result.Recommendations) != 1 || result.Recommendations[0].Track.ID != "a" {
		t.Fatalf("recommendations = %+v, want only track a", result.Recommendations)
	}
	if result.TotalDuplicates != 2 {
		t.Errorf("TotalDuplicates = %d, want 2", result.TotalDuplicates)
	}
	if !dedup.Has("a") {
		t.Error("accepted track should be added to the dedup store")
	}
}

func TestRecommendDryRunSkipsQueueing(t *testing.T) {
	suggestions, outcomes := suggestionFixtures()
	catalog := &mockCatalog{devices: []Device{{Active: true}}}

	o := newTestOrchestrator(catalog, &mockResolver{outcomes}, &mockSuggester{suggestions: suggestions}, &mockVerifier{}, nil)

	result, err := o.Recommend(context.Background(), RecommendRequest{Song: "Lahore", DryRun: true}, nil)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(catalog.queued) != 0 || result.TotalQueued != 0 {
		t.Errorf("dry run queued %v", catalog.queued)
	}
	for _, rec := range result.Recommendations {
		if rec.InQueue {
			t.Error("InQueue = true on dry run")
		}
	}
}

func TestRecommendQueueRetriesOnce(t *testing.T) {
	suggestions, outcomes := suggestionFixtures()
	catalog := &mockCatalog{
		devices:    []Device{{Active: true}},
		queueFails: map[string]int{"spotify:track:a": 1},
	}

	o := newTestOrchestrator(catalog, &mockResolver{outcomes}, &mockSuggester{suggestions: suggestions}, &mockVerifier{}, nil)

	result, err := o.Recommend(context.Background(), RecommendRequest{Song: "Lahore"}, nil)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if result.TotalQueued != 3 {
		t.Errorf("TotalQueued = %d, want 3 (transient failure retried)", result.TotalQueued)
	}
}

func TestRecommendNoDeviceSkipsQueue(t *testing.T) {
	suggestions, outcomes := suggestionFixtures()
	catalog := &mockCatalog{}

	o := newTestOrchestrator(catalog, &mockResolver{outcomes}, &mockSuggester{suggestions: suggestions}, &mockVerifier{}, nil)

	result, err := o.Recommend(context.Background(), RecommendRequest{Song: "Lahore"}, nil)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if result.TotalQueued != 0 {
		t.Errorf("TotalQueued = %d, want 0 without devices", result.TotalQueued)
	}
	if len(result.Recommendations) != 3 {
		t.Error("recommendations should still be produced without a device")
	}
}

func TestRecommendAutoplayStartsSeed(t *testing.T) {
	suggestions, outcomes := suggestionFixtures()
	catalog := &mockCatalog{devices: []Device{{Active: true}}}

	o := newTestOrchestrator(catalog, &mockResolver{outcomes}, &mockSuggester{suggestions: suggestions}, &mockVerifier{}, nil)

	if _, err := o.Recommend(context.Background(), RecommendRequest{Song: "Lahore", Autoplay: true}, nil); err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(catalog.played) != 1 || catalog.played[0] != "spotify:track:seed" {
		t.Errorf("played = %v, want the seed URI", catalog.played)
	}
}

func TestRecommendEmitsProgressEvents(t *testing.T) {
	suggestions, outcomes := suggestionFixtures()
	catalog := &mockCatalog{devices: []Device{{Active: true}}}

	var events []string
	progress := func(ev ProgressEvent) { events = append(events, ev.Type) }

	o := newTestOrchestrator(catalog, &mockResolver{outcomes}, &mockSuggester{suggestions: suggestions}, &mockVerifier{}, nil)

	if _, err := o.Recommend(context.Background(), RecommendRequest{Song: "Lahore"}, progress); err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	joined := strings.Join(events, " ")
	for _, want := range []string{EventSeed, EventTrack, EventComplete} {
		if !strings.Contains(joined, want) {
			t.Errorf("events %v missing %q", events, want)
		}
	}
	if events[len(events)-1] != EventComplete {
		t.Errorf("last event = %q, want %q", events[len(events)-1], EventComplete)
	}
}
