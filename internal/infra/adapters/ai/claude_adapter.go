package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tcross-assistant/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*ClaudeAdapter)(nil)

const (
	claudeDefaultBaseURL = "https://api.anthropic.com/v1"
	claudeAPIVersion     = "2023-06-01"
	// the Messages API requires max_tokens on every request
	claudeDefaultMaxTokens = 2048
)

// ClaudeError is a non-2xx answer from the Messages API.
type ClaudeError struct {
	Status  int
	Type    string
	Message string
}

func (e *ClaudeError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("claude: %d %s: %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("claude: %d: %s", e.Status, e.Message)
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []claudeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
}

// ClaudeAdapter talks to the Anthropic Messages API over plain HTTP.
type ClaudeAdapter struct {
	apiKey  string
	baseURL string
	models  []string
	hc      *http.Client
}

func NewClaudeAdapter(apiKey, baseURL string, models []string) (*ClaudeAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("claude: empty api key")
	}
	if baseURL == "" {
		baseURL = claudeDefaultBaseURL
	}
	if len(models) == 0 {
		models = []string{"claude-3-5-haiku-latest"}
	}
	return &ClaudeAdapter{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		models:  models,
		// per-call deadlines come from ctx; this only guards hung connections
		hc: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

func (c *ClaudeAdapter) Name() string { return "claude" }

func (c *ClaudeAdapter) ListModels(ctx context.Context) ([]string, error) {
	return append([]string(nil), c.models...), nil
}

func (c *ClaudeAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{
		Name:        modelOrDefault(model, c.models[0]),
		Description: "Anthropic Messages API model",
		MaxTokens:   200000,
		Supports:    []string{"text"},
	}, nil
}

// CountTokens is an estimate; the count endpoint is a separate beta API.
func (c *ClaudeAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m.Content) + 3
	}
	return total, nil
}

func (c *ClaudeAdapter) Chat(ctx context.Context, model string, messages []adapter.Message, params adapter.GenerationParams) (string, error) {
	reply, _, err := c.ChatWithUsage(ctx, model, messages, params)
	return reply, err
}

func (c *ClaudeAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, params adapter.GenerationParams) (string, adapter.Usage, error) {
	msgs, system := toClaudeMessages(messages)
	if len(msgs) == 0 {
		return "", adapter.Usage{}, errors.New("claude: no messages")
	}
	req := claudeRequest{
		Model:       modelOrDefault(model, c.models[0]),
		Messages:    msgs,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		System:      system,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = claudeDefaultMaxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", adapter.Usage{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", adapter.Usage{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", adapter.Usage{}, &ClaudeError{
			Status:  resp.StatusCode,
			Type:    gjson.GetBytes(raw, "error.type").String(),
			Message: msg,
		}
	}

	in := int(gjson.GetBytes(raw, "usage.input_tokens").Int())
	out := int(gjson.GetBytes(raw, "usage.output_tokens").Int())
	u := adapter.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}

	var text strings.Builder
	gjson.GetBytes(raw, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			text.WriteString(block.Get("text").String())
		}
		return true
	})
	if text.Len() == 0 {
		return "", u, errors.New("claude: empty content")
	}
	return text.String(), u, nil
}

// toClaudeMessages folds system messages into the top-level system prompt;
// the Messages API only accepts user and assistant turns.
func toClaudeMessages(msgs []adapter.Message) ([]claudeMessage, string) {
	var system []string
	out := make([]claudeMessage, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			out = append(out, claudeMessage{Role: "assistant", Content: m.Content})
		default:
			out = append(out, claudeMessage{Role: "user", Content: m.Content})
		}
	}
	return out, strings.Join(system, "\n\n")
}
