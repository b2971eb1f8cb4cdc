//go:build !integration

package ai_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"tcross-assistant/internal/domain"
	"tcross-assistant/internal/domain/ports/adapter"
	ai "tcross-assistant/internal/infra/adapters/ai"
)

type stubAI struct {
	name   string
	models []string
	err    error

	ctN  int32
	cwuN int32
}

func (s *stubAI) Name() string { return s.name }
func (s *stubAI) ListModels(ctx context.Context) ([]string, error) {
	return s.models, nil
}
func (s *stubAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: model, Description: s.name}, nil
}
func (s *stubAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	atomic.AddInt32(&s.ctN, 1)
	return 1, nil
}
func (s *stubAI) Chat(ctx context.Context, model string, messages []adapter.Message, p adapter.GenerationParams) (string, error) {
	r, _, err := s.ChatWithUsage(ctx, model, messages, p)
	return r, err
}
func (s *stubAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, p adapter.GenerationParams) (string, adapter.Usage, error) {
	atomic.AddInt32(&s.cwuN, 1)
	if s.err != nil {
		return "", adapter.Usage{}, s.err
	}
	return s.name + ":ok", adapter.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}, nil
}

func TestProviderSet_Routing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubAI{name: "openai", models: []string{"gpt-4o-mini"}}
	claude := &stubAI{name: "claude", models: []string{"claude-3-5-haiku-latest", "custom-x"}}
	off := &stubAI{name: "offline", models: []string{"tcross-offline"}}

	set, err := ai.NewProviderSet(ctx, "openai", open, claude, off)
	if err != nil {
		t.Fatal(err)
	}

	// listed model wins
	if reply, _ := set.Chat(ctx, "custom-x", nil, adapter.GenerationParams{}); reply != "claude:ok" {
		t.Fatalf("custom-x routed to %q", reply)
	}
	// prefix heuristic for unlisted models
	if got := set.ProviderFor("gpt-4.1"); got != "openai" {
		t.Fatalf("gpt-4.1 -> %s", got)
	}
	if got := set.ProviderFor("claude-3-opus"); got != "claude" {
		t.Fatalf("claude-3-opus -> %s", got)
	}
	// gemini is not configured, so fall back to active
	if got := set.ProviderFor("gemini-2.0-flash"); got != "openai" {
		t.Fatalf("gemini without provider -> %s", got)
	}
	if got := set.ProviderFor("TCROSS-OFFLINE"); got != "offline" {
		t.Fatalf("case-insensitive lookup -> %s", got)
	}

	_, _ = set.CountTokens(ctx, "unknown", nil)
	if atomic.LoadInt32(&open.ctN) != 1 {
		t.Fatal("unknown model should go to the active provider")
	}
}

func TestProviderSet_ListAndOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubAI{name: "openai", models: []string{"gpt-4o-mini", "shared"}}
	off := &stubAI{name: "offline", models: []string{"tcross-offline", "shared"}}

	set, err := ai.NewProviderSet(ctx, "offline", open, off)
	if err != nil {
		t.Fatal(err)
	}
	if set.Name() != "offline" || set.Active() != off {
		t.Fatalf("active = %s", set.Name())
	}
	ps := set.Providers()
	if len(ps) != 2 || ps[0] != off {
		t.Fatal("active provider should be listed first")
	}
	models, _ := set.ListModels(ctx)
	if len(models) != 3 || models[0] != "tcross-offline" {
		t.Fatalf("models = %v", models)
	}
	// first provider to list a model owns it
	if got := set.ProviderFor("shared"); got != "openai" {
		t.Fatalf("shared -> %s", got)
	}
}

func TestProviderSet_UnknownActive(t *testing.T) {
	t.Parallel()
	_, err := ai.NewProviderSet(context.Background(), "metis", &stubAI{name: "offline"})
	if !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("err = %v", err)
	}
}
