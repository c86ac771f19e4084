package llm

import (
	"context"

	"crowdcount/internal/domain"
	"crowdcount/internal/shared"
)

// FromConfig builds the configured gateway, once per process. It returns a nil
// gateway, not an error, when no API key is set.
func FromConfig(ctx context.Context, cfg shared.Config) (domain.LLMGateway, error) {
	if cfg.APIKey() == "" {
		return nil, nil
	}
	switch cfg.LLMProvider {
	case "gemini":
		g, err := NewGemini(ctx, cfg.GeminiKey, cfg.GeminiBaseURL, cfg.GeminiModel, cfg.LLMMaxTokens, cfg.LLMTemperature)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.LLMMaxTokens, cfg.LLMTemperature), nil
	}
}
