package ai

import (
	"context"
	"fmt"
	"strings"

	"tcross-assistant/internal/domain"
	"tcross-assistant/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*ProviderSet)(nil)

// ProviderSet holds every configured provider with one of them active.
// Calls are routed by model name: models a provider lists go to that
// provider, everything else goes to the active one.
type ProviderSet struct {
	active          string
	byProvider      map[string]adapter.AIServiceAdapter
	order           []string
	modelToProvider map[string]string
}

// NewProviderSet indexes the models of each provider. The active provider
// must be one of them.
func NewProviderSet(ctx context.Context, active string, providers ...adapter.AIServiceAdapter) (*ProviderSet, error) {
	s := &ProviderSet{
		active:          strings.ToLower(active),
		byProvider:      make(map[string]adapter.AIServiceAdapter, len(providers)),
		modelToProvider: make(map[string]string),
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		name := strings.ToLower(p.Name())
		if _, dup := s.byProvider[name]; dup {
			continue
		}
		s.byProvider[name] = p
		s.order = append(s.order, name)
		models, err := p.ListModels(ctx)
		if err != nil {
			continue
		}
		for _, m := range models {
			key := strings.ToLower(strings.TrimSpace(m))
			if _, taken := s.modelToProvider[key]; key != "" && !taken {
				s.modelToProvider[key] = name
			}
		}
	}
	if _, ok := s.byProvider[s.active]; !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, active)
	}
	return s, nil
}

// Name reports the active provider.
func (s *ProviderSet) Name() string { return s.active }

func (s *ProviderSet) Active() adapter.AIServiceAdapter { return s.byProvider[s.active] }

// Providers returns the configured providers, active first.
func (s *ProviderSet) Providers() []adapter.AIServiceAdapter {
	out := []adapter.AIServiceAdapter{s.byProvider[s.active]}
	for _, name := range s.order {
		if name != s.active {
			out = append(out, s.byProvider[name])
		}
	}
	return out
}

// ProviderFor names the provider a model is routed to.
func (s *ProviderSet) ProviderFor(model string) string {
	if p := s.modelToProvider[strings.ToLower(strings.TrimSpace(model))]; p != "" {
		return p
	}
	l := strings.ToLower(model)
	for prefix, prov := range map[string]string{"gpt": "openai", "claude": "claude", "gemini": "gemini"} {
		if strings.HasPrefix(l, prefix) {
			if _, ok := s.byProvider[prov]; ok {
				return prov
			}
		}
	}
	return s.active
}

func (s *ProviderSet) pick(model string) adapter.AIServiceAdapter {
	return s.byProvider[s.ProviderFor(model)]
}

func (s *ProviderSet) ListModels(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range s.Providers() {
		list, err := p.ListModels(ctx)
		if err != nil {
			continue
		}
		for _, name := range list {
			if _, ok := seen[name]; name != "" && !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
	}
	return out, nil
}

func (s *ProviderSet) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return s.pick(model).GetModelInfo(model)
}

func (s *ProviderSet) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return s.pick(model).CountTokens(ctx, model, messages)
}

func (s *ProviderSet) Chat(ctx context.Context, model string, messages []adapter.Message, params adapter.GenerationParams) (string, error) {
	return s.pick(model).Chat(ctx, model, messages, params)
}

func (s *ProviderSet) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, params adapter.GenerationParams) (string, adapter.Usage, error) {
	return s.pick(model).ChatWithUsage(ctx, model, messages, params)
}
