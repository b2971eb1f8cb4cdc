package ai

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"tcross-assistant/internal/domain/ports/adapter"
	"tcross-assistant/internal/infra/logging"
	"tcross-assistant/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*retryingAI)(nil)

type retryingAI struct {
	inner      adapter.AIServiceAdapter
	maxRetries int
	backoff    time.Duration
	log        *zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRetryingAI retries chat calls that failed with a retryable error
// (429, 5xx, network) with exponential backoff. A retry is never started when
// the wait would run past the caller's deadline.
func NewRetryingAI(inner adapter.AIServiceAdapter, maxRetries int, backoff time.Duration, logger *zerolog.Logger) adapter.AIServiceAdapter {
	if maxRetries <= 0 {
		return inner
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &retryingAI{inner: inner, maxRetries: maxRetries, backoff: backoff, log: logger, sleep: sleepCtx}
}

func (r *retryingAI) Name() string { return r.inner.Name() }

func (r *retryingAI) ListModels(ctx context.Context) ([]string, error) {
	return r.inner.ListModels(ctx)
}

func (r *retryingAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return r.inner.GetModelInfo(model)
}

func (r *retryingAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return r.inner.CountTokens(ctx, model, messages)
}

func (r *retryingAI) Chat(ctx context.Context, model string, messages []adapter.Message, params adapter.GenerationParams) (string, error) {
	reply, _, err := r.ChatWithUsage(ctx, model, messages, params)
	return reply, err
}

func (r *retryingAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message, params adapter.GenerationParams) (string, adapter.Usage, error) {
	wait := r.backoff
	for attempt := 0; ; attempt++ {
		reply, usage, err := r.inner.ChatWithUsage(ctx, model, messages, params)
		if err == nil || attempt >= r.maxRetries || !IsRetryable(err) || ctx.Err() != nil {
			return reply, usage, err
		}
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) <= wait {
			return reply, usage, err
		}
		r.log.Warn().Err(err).
			Str("provider", r.inner.Name()).
			Str("model", model).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("ai call failed; retrying")
		metrics.IncAIRetry(r.inner.Name())
		if serr := r.sleep(ctx, wait); serr != nil {
			return reply, usage, err
		}
		wait *= 2
	}
}

// IsRetryable reports whether a provider error is worth another attempt.
// Caller cancellation and deadlines are never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if status := statusOf(err); status != 0 {
		return status == 429 || status >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func statusOf(err error) int {
	var oe *openai.Error
	if errors.As(err, &oe) {
		return oe.StatusCode
	}
	var ce *ClaudeError
	if errors.As(err, &ce) {
		return ce.Status
	}
	var ge genai.APIError
	if errors.As(err, &ge) {
		return ge.Code
	}
	var gpe *genai.APIError
	if errors.As(err, &gpe) {
		return gpe.Code
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
