package adapter

import "context"

// Message represents a chat message sent to a provider.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ModelInfo describes a model.
type ModelInfo struct {
	Name        string
	Description string
	MaxTokens   int
	Supports    []string
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerationParams are the per-model knobs applied to a chat call.
// Zero values mean "provider default".
type GenerationParams struct {
	Temperature float64
	MaxTokens   int
}

// AIServiceAdapter is the port for LLM chat.
type AIServiceAdapter interface {
	// Name is the provider identifier used in config ("openai", "claude", ...).
	Name() string

	ListModels(ctx context.Context) ([]string, error)
	GetModelInfo(model string) (ModelInfo, error)

	// CountTokens must return prompt tokens for the provided messages
	// (provider-specific counting; best-effort when exact isn't available).
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)

	// Chat returns only the assistant text
	Chat(ctx context.Context, model string, messages []Message, params GenerationParams) (string, error)

	// ChatWithUsage returns assistant text + usage as reported by the provider.
	ChatWithUsage(ctx context.Context, model string, messages []Message, params GenerationParams) (string, Usage, error)
}
