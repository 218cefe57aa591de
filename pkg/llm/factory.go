package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// Supported completion providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config holds provider settings for creating a completion client.
type Config struct {
	Provider string // "anthropic" or "openai"
	Endpoint string // optional base URL for OpenAI-compatible servers
	APIKey   string
	Model    string
}

// NewClient creates the completion client for the configured provider.
func NewClient(cfg *Config, logger *zap.Logger) (CompletionClient, error) {
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg.APIKey, cfg.Model, logger)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.Endpoint, cfg.APIKey, cfg.Model, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
	}
}
