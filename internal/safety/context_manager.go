package safety

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tcross-assistant/internal/domain"
	"tcross-assistant/internal/domain/model"
	"tcross-assistant/internal/domain/ports/adapter"
	"tcross-assistant/internal/infra/logging"
	"tcross-assistant/internal/infra/metrics"
)

const (
	MaxContextLength = 3000
	RedactedMarker   = "[FILTRADO]"

	ContextStart = "=== INÍCIO DO CONTEXTO DO MANUAL ==="
	ContextEnd   = "=== FIM DO CONTEXTO DO MANUAL ==="

	defaultRetrievalTimeout = 5 * time.Second
)

var sensitiveTokens = []string{"api_key", "password", "secret", "token", "system:", "role:", "assistant:", "user:"}

var sensitivePattern = func() *regexp.Regexp {
	quoted := make([]string, len(sensitiveTokens))
	for i, s := range sensitiveTokens {
		quoted[i] = regexp.QuoteMeta(s)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))
}()

// ContextManager fetches manual passages for a question and makes them safe
// to embed in a prompt.
type ContextManager struct {
	retriever adapter.Retriever
	timeout   time.Duration
	log       *zerolog.Logger
}

func NewContextManager(r adapter.Retriever, timeout time.Duration, logger *zerolog.Logger) *ContextManager {
	if timeout <= 0 {
		timeout = defaultRetrievalTimeout
	}
	return &ContextManager{retriever: r, timeout: timeout, log: logger}
}

// GetSafeContext returns the delimited, redacted and truncated context for
// message, or "" when nothing relevant was found.
func (m *ContextManager) GetSafeContext(ctx context.Context, message string, vehicle model.VehicleInfo, k int) (string, error) {
	defer logging.TraceDuration(m.log, "ContextManager.GetSafeContext")()

	if m.retriever == nil || k <= 0 {
		return "", nil
	}
	query := strings.TrimSpace(message)
	if !vehicle.IsZero() {
		query = vehicle.Label() + "\n" + query
	}

	sctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	passages, err := m.retriever.Search(sctx, query, k)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveRetrieval(latency, 0, false)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(sctx.Err(), context.DeadlineExceeded) {
			logging.With(ctx, m.log).Warn().Dur("timeout", m.timeout).Msg("manual search timed out")
			return "", fmt.Errorf("%w: manual search: %w", domain.ErrProviderTimeout, err)
		}
		logging.With(ctx, m.log).Error().Err(err).Msg("manual search failed")
		return "", fmt.Errorf("%w: manual search: %w", domain.ErrProviderFailure, err)
	}
	metrics.ObserveRetrieval(latency, len(passages), true)

	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		if c := strings.TrimSpace(p.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return FilterContext(strings.Join(parts, "\n\n")), nil
}

// FilterContext redacts, truncates and delimits raw reference text.
func FilterContext(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	text := sensitivePattern.ReplaceAllString(raw, RedactedMarker)
	text = truncateRunes(text, MaxContextLength)
	return ContextStart + "\n" + text + "\n" + ContextEnd
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
