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
	verifyTemperature = 0.3
	verifyMaxTokens   = 1500

	// missingReason marks verdicts the model did not return; such entries
	// pass with middling confidence so a short reply never drops songs.
	missingReason = "Missing result"
)

const verifierSystemPrompt = `You are a music quality verifier. Your job is to determine if a recommended song is truly a good match for the seed song based on multiple criteria.

**Evaluation Criteria:**
1. **Artist Match (30%)**: Is it by the same artist, or a closely related artist in the same scene?
2. **Genre/Culture Match (30%)**: Does it belong to the same genre and cultural context?
3. **Energy/Vibe Match (20%)**: Does it have similar energy, tempo, and mood?
4. **Popularity/Quality (10%)**: Is it a well-known, high-quality track?
5. **Sonic Coherence (10%)**: Would this song flow well after the seed in a playlist?

**Rejection Reasons:**
- Different language/culture
- Completely different genre
- Mismatched energy
- Artist has no connection to the seed artist's scene
- Obscure track unlikely to exist on a streaming catalog

**Acceptance Criteria:**
- Same artist or closely associated artist
- Same genre and cultural context
- Similar energy and production style
- Well-known, popular track`

const verifierSingleFormat = `
**Output Format (JSON ONLY):**
{
  "is_valid": true or false,
  "confidence_score": 0.0 to 1.0,
  "reason": "Brief explanation (1 sentence)"
}`

const verifierBatchFormat = `
**Task:** Verify ALL songs in a single response. Return JSON with a verification for each song IN ORDER.

**Output Format (JSON ONLY):**
{
  "verifications": [
    {"song_number": 1, "is_valid": true, "confidence_score": 0.95, "reason": "Same artist, matching style"},
    {"song_number": 2, "is_valid": false, "confidence_score": 0.3, "reason": "Different genre"}
  ]
}

Return ONLY valid JSON.`

type verificationPayload struct {
	IsValid    bool    `json:"is_valid"`
	Confidence float64 `json:"confidence_score"`
	Reason     string  `json:"reason"`
}

type batchVerificationPayload struct {
	Verifications []struct {
		SongNumber int     `json:"song_number"`
		IsValid    bool    `json:"is_valid"`
		Confidence float64 `json:"confidence_score"`
		Reason     string  `json:"reason"`
	} `json:"verifications"`
}

// Verifier judges resolved suggestions against the seed. Verification never
// fails the caller: provider or parse errors degrade to a permissive default
// verdict so one flaky call cannot reject unrelated songs.
type Verifier struct {
	client CompletionClient
	logger *zap.Logger
}

func NewVerifier(client CompletionClient, logger *zap.Logger) *Verifier {
	return &Verifier{client: client, logger: logger}
}

func (v *Verifier) Verify(ctx context.Context, seed core.SeedDescriptor, pair core.ResolvedSuggestion) core.VerificationResult {
	content, err := v.client.Complete(ctx, CompletionRequest{
		System:      verifierSystemPrompt + verifierSingleFormat,
		User:        buildVerifyPrompt(seed, pair),
		MaxTokens:   verifyMaxTokens,
		Temperature: verifyTemperature,
	})
	if err != nil {
		v.logger.Warn("verification failed", zap.String("title", pair.Suggestion.Title), zap.Error(err))
		return fallbackVerdict(err)
	}

	var payload verificationPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		v.logger.Warn("failed to parse verification",
			zap.String("title", pair.Suggestion.Title),
			zap.Error(err),
			zap.String("content", content))
		return fallbackVerdict(err)
	}

	return core.VerificationResult{
		IsValid:    payload.IsValid,
		Confidence: payload.Confidence,
		Reason:     payload.Reason,
	}
}

// VerifyBatch verifies all pairs in one provider call. The result slice
// always has exactly len(pairs) entries in the same order; verdicts the
// model omitted are filled with the permissive default.
func (v *Verifier) VerifyBatch(ctx context.Context, seed core.SeedDescriptor, pairs []core.ResolvedSuggestion) []core.VerificationResult {
	if len(pairs) == 0 {
		return nil
	}

	content, err := v.client.Complete(ctx, CompletionRequest{
		System:      verifierSystemPrompt,
		User:        buildBatchVerifyPrompt(seed, pairs),
		MaxTokens:   verifyMaxTokens,
		Temperature: verifyTemperature,
	})
	if err != nil {
		v.logger.Warn("batch verification failed", zap.Int("count", len(pairs)), zap.Error(err))
		return fallbackVerdicts(len(pairs), err)
	}

	var payload batchVerificationPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		v.logger.Warn("failed to parse batch verification", zap.Error(err), zap.String("content", content))
		return fallbackVerdicts(len(pairs), err)
	}

	results := make([]core.VerificationResult, len(pairs))
	for i := range results {
		results[i] = core.VerificationResult{IsValid: true, Confidence: 0.5, Reason: missingReason}
	}
	for i, verdict := range payload.Verifications {
		idx := verdict.SongNumber - 1
		if idx < 0 || idx >= len(results) {
			idx = i
		}
		if idx >= len(results) {
			continue
		}
		results[idx] = core.VerificationResult{
			IsValid:    verdict.IsValid,
			Confidence: verdict.Confidence,
			Reason:     verdict.Reason,
		}
	}
	return results
}

func fallbackVerdict(err error) core.VerificationResult {
	reason := err.Error()
	if len(reason) > 50 {
		reason = reason[:50]
	}
	return core.VerificationResult{
		IsValid:    true,
		Confidence: 0.5,
		Reason:     "Verification error: " + reason,
	}
}

func fallbackVerdicts(n int, err error) []core.VerificationResult {
	results := make([]core.VerificationResult, n)
	for i := range results {
		results[i] = fallbackVerdict(err)
	}
	return results
}

func buildVerifyPrompt(seed core.SeedDescriptor, pair core.ResolvedSuggestion) string {
	var b strings.Builder
	writeSeed(&b, seed)
	b.WriteString("\n**Recommended Song:**\n")
	writePair(&b, pair)
	b.WriteString("\n**Question:** Is this recommended song a valid match for the seed song?")
	return b.String()
}

func buildBatchVerifyPrompt(seed core.SeedDescriptor, pairs []core.ResolvedSuggestion) string {
	var b strings.Builder
	writeSeed(&b, seed)
	b.WriteString("\n**Recommended Songs to Verify:**\n\n")
	for i, pair := range pairs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, pair.Suggestion.Title)
		fmt.Fprintf(&b, "   - Artist: %s\n", strings.Join(pair.Suggestion.Artists, ", "))
		fmt.Fprintf(&b, "   - Genre: %s\n", pair.Suggestion.Genre)
		fmt.Fprintf(&b, "   - Catalog Artist: %s\n", strings.Join(pair.Track.Artists, ", "))
		fmt.Fprintf(&b, "   - Popularity: %d/100\n", pair.Track.Popularity)
		fmt.Fprintf(&b, "   - AI Reason: %s\n\n", pair.Suggestion.Reason)
	}
	b.WriteString(verifierBatchFormat)
	return b.String()
}

func writeSeed(b *strings.Builder, seed core.SeedDescriptor) {
	b.WriteString("**Seed Song:**\n")
	fmt.Fprintf(b, "- Title: %s\n", seed.Title)
	fmt.Fprintf(b, "- Artist: %s\n", strings.Join(seed.Artists, ", "))
	if seed.Genre != "" {
		fmt.Fprintf(b, "- Genre: %s\n", seed.Genre)
	}
}

func writePair(b *strings.Builder, pair core.ResolvedSuggestion) {
	fmt.Fprintf(b, "- Title: %s\n", pair.Suggestion.Title)
	fmt.Fprintf(b, "- Artist: %s\n", strings.Join(pair.Suggestion.Artists, ", "))
	fmt.Fprintf(b, "- Genre: %s\n", pair.Suggestion.Genre)
	fmt.Fprintf(b, "- AI Reason: %s\n", pair.Suggestion.Reason)
	fmt.Fprintf(b, "- Catalog Artist: %s\n", strings.Join(pair.Track.Artists, ", "))
	fmt.Fprintf(b, "- Catalog Popularity: %d/100\n", pair.Track.Popularity)
}
