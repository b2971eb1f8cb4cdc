package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"tcross-assistant/internal/domain"
	"tcross-assistant/internal/domain/model"
	"tcross-assistant/internal/domain/ports/adapter"
)

const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// ModelConfigUseCase keeps the generation settings of every model the
// configured providers can serve.
type ModelConfigUseCase interface {
	// List returns all known models ordered by provider then name.
	List(ctx context.Context) []model.AIModelConfig

	// Get returns the config of a model (case-insensitive).
	Get(name string) (model.AIModelConfig, error)

	// Update changes temperature and/or max tokens. Nil pointers mean "no change".
	Update(name string, temperature *float64, maxTokens *int) (model.AIModelConfig, error)

	// Params returns the generation parameters for name, or the defaults for
	// an unknown model.
	Params(name string) adapter.GenerationParams
}

var _ ModelConfigUseCase = (*modelConfigUC)(nil)

type modelConfigUC struct {
	mu      sync.RWMutex
	configs map[string]model.AIModelConfig
	log     *zerolog.Logger
}

// NewModelConfigUseCase builds the registry from every provider's ListModels.
// A provider that fails to list is logged and skipped.
func NewModelConfigUseCase(ctx context.Context, providers []adapter.AIServiceAdapter, logger *zerolog.Logger) ModelConfigUseCase {
	uc := &modelConfigUC{configs: make(map[string]model.AIModelConfig), log: logger}
	for _, p := range providers {
		names, err := p.ListModels(ctx)
		if err != nil {
			logger.Warn().Err(err).Str("provider", p.Name()).Msg("list models failed")
			continue
		}
		for _, name := range names {
			key := normalizeModelName(name)
			if key == "" {
				continue
			}
			if _, dup := uc.configs[key]; dup {
				continue
			}
			cfg := model.NewAIModelConfig(name, p.Name())
			if info, err := p.GetModelInfo(name); err == nil && info.Description != "" {
				cfg.Description = info.Description
			}
			uc.configs[key] = cfg
		}
	}
	return uc
}

func (m *modelConfigUC) List(_ context.Context) []model.AIModelConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.AIModelConfig, 0, len(m.configs))
	for _, c := range m.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (m *modelConfigUC) Get(name string) (model.AIModelConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.configs[normalizeModelName(name)]
	if !ok {
		return model.AIModelConfig{}, fmt.Errorf("model %q: %w", name, domain.ErrNotFound)
	}
	return c, nil
}

func (m *modelConfigUC) Update(name string, temperature *float64, maxTokens *int) (model.AIModelConfig, error) {
	if temperature != nil && (*temperature < MinTemperature || *temperature > MaxTemperature) {
		return model.AIModelConfig{}, fmt.Errorf("temperature must be within [%.0f, %.0f]: %w", MinTemperature, MaxTemperature, domain.ErrInvalidArgument)
	}
	if maxTokens != nil && *maxTokens <= 0 {
		return model.AIModelConfig{}, fmt.Errorf("max_tokens must be positive: %w", domain.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := normalizeModelName(name)
	c, ok := m.configs[key]
	if !ok {
		return model.AIModelConfig{}, fmt.Errorf("model %q: %w", name, domain.ErrNotFound)
	}
	if temperature != nil {
		c.Temperature = *temperature
	}
	if maxTokens != nil {
		c.MaxTokens = *maxTokens
	}
	m.configs[key] = c
	m.log.Info().Str("model", c.Name).Float64("temperature", c.Temperature).Int("max_tokens", c.MaxTokens).Msg("model config updated")
	return c, nil
}

func (m *modelConfigUC) Params(name string) adapter.GenerationParams {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.configs[normalizeModelName(name)]
	if !ok {
		return adapter.GenerationParams{Temperature: model.DefaultTemperature, MaxTokens: model.DefaultMaxTokens}
	}
	return adapter.GenerationParams{Temperature: c.Temperature, MaxTokens: c.MaxTokens}
}

func normalizeModelName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
