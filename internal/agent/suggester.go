package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mixcue/internal/core"
)

const (
	suggestTemperature = 0.6
	suggestMaxTokens   = 2000
)

const suggesterSystemPrompt = `You are an expert music recommendation assistant. Your task is to provide extremely relevant song recommendations by strictly following the steps below.

**Step 1: Analyze the Seed Song**
You will receive:
 - **Seed Song:** The exact title from the catalog
 - **Artist:** The verified artist(s)
 - **Genre:** The genre/style (when available)

Use this verified information to understand the core genre and culture, the energy and vibe, and the vocal style of the seed.

**Step 2: Identify High-Confidence Matches**
 1. **Same Artist Tracks:** Prioritize 2-3 most popular/sonically similar tracks by the exact artist provided.
 2. **Direct Genre Matches:** Identify tracks by closely associated, high-production artists within the exact core genre.
 3. **Playability:** Only suggest titles common and well-known enough to resolve correctly on a streaming catalog.

**Step 3: Format the Output**
Return the recommendations as JSON. This is the ONLY output you must provide.

JSON Schema:
{
  "songs": [
    {
      "title": "exact song title as it appears on the catalog",
      "artists": ["exact artist name(s)"],
      "genre": "specific genre",
      "reason": "1-2 lines explaining the direct sonic match"
    }
  ]
}

Critical constraints:
- The output MUST be clean, valid JSON ONLY. No text or markdown outside the JSON.
- Only suggest extremely well-known, high-confidence song titles.
- Match the genre and cultural context precisely.
- Avoid recommending the seed song itself or duplicates.`

type suggestionPayload struct {
	Songs []struct {
		Title   string   `json:"title"`
		Artists []string `json:"artists"`
		Genre   string   `json:"genre"`
		Reason  string   `json:"reason"`
	} `json:"songs"`
}

// Suggester asks the completion provider for songs similar to a seed.
type Suggester struct {
	client CompletionClient
	logger *zap.Logger
}

func NewSuggester(client CompletionClient, logger *zap.Logger) *Suggester {
	return &Suggester{client: client, logger: logger}
}

// Suggest returns count song suggestions for the seed. It fails when the
// provider cannot be reached or returns no parseable suggestions; retrying
// is the caller's concern.
func (s *Suggester) Suggest(ctx context.Context, seed core.SeedDescriptor, count int) ([]core.SongSuggestion, error) {
	content, err := s.client.Complete(ctx, CompletionRequest{
		System:      suggesterSystemPrompt,
		User:        buildSuggestionPrompt(seed, count),
		MaxTokens:   suggestMaxTokens,
		Temperature: suggestTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("suggestion request failed: %w", err)
	}

	var payload suggestionPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		s.logger.Warn("failed to parse suggestions", zap.Error(err), zap.String("content", content))
		return nil, fmt.Errorf("failed to parse suggestions: %w", err)
	}

	if len(payload.Songs) == 0 {
		return nil, fmt.Errorf("no song suggestions returned")
	}

	suggestions := make([]core.SongSuggestion, 0, len(payload.Songs))
	for _, song := range payload.Songs {
		if strings.TrimSpace(song.Title) == "" {
			continue
		}
		suggestions = append(suggestions, core.SongSuggestion{
			Title:   song.Title,
			Artists: song.Artists,
			Genre:   song.Genre,
			Reason:  song.Reason,
		})
	}

	if len(suggestions) == 0 {
		return nil, fmt.Errorf("no usable song suggestions returned")
	}

	s.logger.Info("suggestions received",
		zap.String("seed", seed.Title),
		zap.Int("requested", count),
		zap.Int("received", len(suggestions)))

	return suggestions, nil
}

func buildSuggestionPrompt(seed core.SeedDescriptor, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Seed Song: %q\n", seed.Title)
	if len(seed.Artists) > 0 {
		fmt.Fprintf(&b, "Artist: %s\n", strings.Join(seed.Artists, ", "))
	}
	if seed.Genre != "" {
		fmt.Fprintf(&b, "Genre: %s\n", seed.Genre)
	}
	fmt.Fprintf(&b, "\n**IMPORTANT: You MUST provide EXACTLY %d song recommendations. Not less, not more. Return %d songs.**\n", count, count)
	fmt.Fprintf(&b, "Number of Recommendations Required: %d", count)
	return b.String()
}
