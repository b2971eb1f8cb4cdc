package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"tcross-assistant/internal/config"
	"tcross-assistant/internal/domain/ports/adapter"
)

// NewFromConfig builds every provider that has credentials (offline is always
// available), wraps each with retries, and returns the set plus the
// concurrency-capped adapter the chat pipeline should call.
func NewFromConfig(ctx context.Context, cfg config.AIConfig, logger *zerolog.Logger) (*ProviderSet, adapter.AIServiceAdapter, error) {
	var providers []adapter.AIServiceAdapter
	wrap := func(a adapter.AIServiceAdapter) adapter.AIServiceAdapter {
		return NewRetryingAI(a, cfg.MaxRetries, cfg.RetryBackoff, logger)
	}

	if cfg.OpenAI.APIKey != "" {
		a, err := NewOpenAIAdapter(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Models)
		if err != nil {
			return nil, nil, fmt.Errorf("openai: %w", err)
		}
		providers = append(providers, wrap(a))
	}
	if cfg.Claude.APIKey != "" {
		a, err := NewClaudeAdapter(cfg.Claude.APIKey, cfg.Claude.BaseURL, cfg.Claude.Models)
		if err != nil {
			return nil, nil, fmt.Errorf("claude: %w", err)
		}
		providers = append(providers, wrap(a))
	}
	if cfg.Gemini.APIKey != "" {
		a, err := NewGeminiAdapter(ctx, cfg.Gemini.APIKey, cfg.Gemini.BaseURL, cfg.Gemini.Models)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini: %w", err)
		}
		providers = append(providers, wrap(a))
	}
	providers = append(providers, NewOfflineAdapter())

	set, err := NewProviderSet(ctx, cfg.Provider, providers...)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().
		Str("active", set.Name()).
		Int("providers", len(providers)).
		Int("concurrent_limit", cfg.ConcurrentLimit).
		Int("max_retries", cfg.MaxRetries).
		Msg("ai providers ready")
	return set, NewLimitedAI(set, cfg.ConcurrentLimit), nil
}
