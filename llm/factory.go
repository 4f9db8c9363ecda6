package llm

import (
	"context"
	"fmt"
)

// Supported provider names for Config.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderGemini    = "gemini"
)

// Config selects and configures a provider adapter.
type Config struct {
	// Provider is one of openai, anthropic, bedrock, gemini. Empty
	// selects openai.
	Provider string

	// APIKey is the provider credential. Unused by bedrock, which goes
	// through the AWS credential chain.
	APIKey string

	// Model is the provider model identifier. Empty uses the provider
	// default.
	Model string

	// BaseURL points the openai provider at an OpenAI-compatible
	// gateway.
	BaseURL string

	// Region is the AWS region for bedrock.
	Region string
}

// New creates the adapter selected by cfg.Provider.
func New(ctx context.Context, cfg Config) (LLM, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		if cfg.BaseURL != "" {
			return NewOpenAILLMWithBaseURL(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
		}
		return NewOpenAILLM(cfg.APIKey, cfg.Model), nil
	case ProviderAnthropic:
		return NewAnthropicLLM(cfg.APIKey, cfg.Model), nil
	case ProviderBedrock:
		return NewBedrockLLM(ctx, BedrockConfig{ModelID: cfg.Model, Region: cfg.Region})
	case ProviderGemini:
		return NewGeminiLLM(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
