package ai

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"tcross-assistant/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// tokens added per message by the chat format (role + separators)
const openAITokensPerMessage = 4

// OpenAIAdapter implements adapter.AIServiceAdapter using Chat Completions API.
type OpenAIAdapter struct {
	client openai.Client
	models []string

	encMu sync.Mutex
	encs  map[string]*tiktoken.Tiktoken
}

func NewOpenAIAdapter(apiKey, baseURL string, models []string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if len(models) == 0 {
		models = []string{"gpt-4o-mini"}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retries are handled by NewRetryingAI so they show up in metrics
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		models: models,
		encs:   make(map[string]*tiktoken.Tiktoken),
	}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return append([]string(nil), o.models...), nil
}

func (o *OpenAIAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	model = modelOrDefault(model, o.models[0])
	return adapter.ModelInfo{
		Name:        model,
		Description: "OpenAI Chat Completions model",
		Supports:    []string{"text"},
	}, nil
}

// CountTokens uses the model's BPE encoding, falling back to cl100k_base and
// finally to a character estimate when no encoding can be loaded.
func (o *OpenAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	enc := o.encoding(modelOrDefault(model, o.models[0]))
	total := 3 // reply priming
	for _, m := range messages {
		total += openAITokensPerMessage
		if enc != nil {
			total += len(enc.Encode(m.Content, nil, nil))
		} else {
			total += estimateTokens(m.Content)
		}
	}
	return total, nil
}

func (o *OpenAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message, params adapter.GenerationParams) (string, error) {
	reply, _, err := o.ChatWithUsage(ctx, model, messages, params)
	return reply, err
}

func (o *OpenAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, params adapter.GenerationParams) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, errors.New("openai: no messages")
	}
	req := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelOrDefault(model, o.models[0])),
		Messages: toOpenAIMessages(messages),
	}
	if params.Temperature > 0 {
		req.Temperature = openai.Float(params.Temperature)
	}
	if params.MaxTokens > 0 {
		req.MaxCompletionTokens = openai.Int(int64(params.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	u := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, u, nil
		}
	}
	return "", u, errors.New("openai: no choice content")
}

func (o *OpenAIAdapter) encoding(model string) *tiktoken.Tiktoken {
	o.encMu.Lock()
	defer o.encMu.Unlock()
	if enc, ok := o.encs[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		enc = nil
	}
	o.encs[model] = enc
	return enc
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// estimateTokens is the usual 4-characters-per-token rule of thumb.
func estimateTokens(s string) int {
	n := len([]rune(s))
	return (n + 3) / 4
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
