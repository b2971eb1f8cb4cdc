//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"tcross-assistant/internal/domain/ports/adapter"
	"tcross-assistant/internal/infra/i18n"
	"tcross-assistant/internal/infra/logging"
	"tcross-assistant/internal/safety"
	"tcross-assistant/internal/usecase"
)

// ---- Mock AIServiceAdapter ----

type MockAI struct {
	mu sync.Mutex

	// configurable behavior
	Models   []string
	Reply    string
	Err      error
	ChatFunc func(ctx context.Context, model string, messages []adapter.Message) (string, error)

	// captured calls
	Calls  [][]adapter.Message
	Params []adapter.GenerationParams
}

var _ adapter.AIServiceAdapter = (*MockAI)(nil)

func (m *MockAI) Name() string { return "mock" }

func (m *MockAI) ListModels(ctx context.Context) ([]string, error) {
	if len(m.Models) == 0 {
		return []string{"mock-model"}, nil
	}
	return m.Models, nil
}

func (m *MockAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: model, Description: "mock " + model}, nil
}

func (m *MockAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, msg := range messages {
		n += len(msg.Content) / 4
	}
	return n, nil
}

func (m *MockAI) Chat(ctx context.Context, model string, messages []adapter.Message, params adapter.GenerationParams) (string, error) {
	reply, _, err := m.ChatWithUsage(ctx, model, messages, params)
	return reply, err
}

func (m *MockAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, params adapter.GenerationParams) (string, adapter.Usage, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, messages)
	m.Params = append(m.Params, params)
	fn, reply, err := m.ChatFunc, m.Reply, m.Err
	m.mu.Unlock()

	if fn != nil {
		reply, err = fn(ctx, model, messages)
	}
	if err != nil {
		return "", adapter.Usage{}, err
	}
	if reply == "" {
		reply = "ok"
	}
	return reply, adapter.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, nil
}

func (m *MockAI) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *MockAI) LastCall() []adapter.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return m.Calls[len(m.Calls)-1]
}

// ---- Mock Retriever ----

type MockRetriever struct {
	Passages []adapter.Passage
	Err      error
}

func (r *MockRetriever) Search(ctx context.Context, query string, k int) ([]adapter.Passage, error) {
	return r.Passages, r.Err
}

// ---- Pipeline builder ----

type pipelineOpts struct {
	ai        *MockAI
	retriever adapter.Retriever
	limiter   adapter.RateLimiter
	timeout   time.Duration
}

func newPipeline(o pipelineOpts) *usecase.ChatPipeline {
	if o.ai == nil {
		o.ai = &MockAI{}
	}
	if o.retriever == nil {
		o.retriever = &MockRetriever{}
	}
	if o.limiter == nil {
		o.limiter = safety.NewRateLimiter(10, 50)
	}
	log := logging.Nop()
	tr := i18n.MustDefault()
	models := usecase.NewModelConfigUseCase(context.Background(), []adapter.AIServiceAdapter{o.ai}, log)
	return &usecase.ChatPipeline{
		Limiter:      o.limiter,
		Validator:    safety.NewValidator(tr),
		Context:      safety.NewContextManager(o.retriever, time.Second, log),
		Protector:    safety.NewPromptProtector(),
		AI:           o.ai,
		Models:       models,
		Text:         tr,
		Log:          log,
		DefaultModel: "mock-model",
		AITimeout:    o.timeout,
		TopK:         3,
	}
}
