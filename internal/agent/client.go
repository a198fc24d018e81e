// Package agent implements the LLM-backed suggestion and verification agents
// on top of interchangeable completion providers.
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mixcue/internal/core"
)

// CompletionClient is a single-turn text completion against one provider.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type CompletionRequest struct {
	System      string
	User        string
	MaxTokens   int64
	Temperature float64
}

// NewClient builds the completion client for the configured provider.
func NewClient(config *core.LLMConfig, logger *zap.Logger) (CompletionClient, error) {
	switch config.Provider {
	case "openai":
		return NewOpenAIClient(config, logger)
	case "anthropic":
		return NewAnthropicClient(config, logger)
	case "ollama":
		return NewOllamaClient(config, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}
}
