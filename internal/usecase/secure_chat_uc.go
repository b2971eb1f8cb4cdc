package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tcross-assistant/internal/domain"
	"tcross-assistant/internal/domain/model"
	"tcross-assistant/internal/domain/ports/adapter"
	"tcross-assistant/internal/infra/logging"
	"tcross-assistant/internal/infra/metrics"
	"tcross-assistant/internal/safety"
)

const (
	defaultAITimeout = 30 * time.Second
	defaultTopK      = 3
)

// ChatPipeline holds the collaborators shared by every conversation. One
// pipeline is built at startup and handed to each SecureChat.
type ChatPipeline struct {
	Limiter   adapter.RateLimiter
	Validator *safety.Validator
	Context   *safety.ContextManager
	Protector *safety.PromptProtector
	AI        adapter.AIServiceAdapter
	Models    ModelConfigUseCase
	Text      safety.Localizer
	Log       *zerolog.Logger

	DefaultModel string
	AITimeout    time.Duration
	TopK         int
	Dev          bool
}

func (p *ChatPipeline) aiTimeout() time.Duration {
	if p.AITimeout <= 0 {
		return defaultAITimeout
	}
	return p.AITimeout
}

func (p *ChatPipeline) topK() int {
	if p.TopK <= 0 {
		return defaultTopK
	}
	return p.TopK
}

// SecureChat owns one conversation and runs every turn through the safety
// pipeline. States: no session, or one active session.
type SecureChat struct {
	p *ChatPipeline

	mu         sync.Mutex
	session    *model.ChatSession
	pending    *model.Message // validated user message still waiting for a reply
	inflight   string         // id of the pending message currently being answered
	vehicle    model.VehicleInfo
	lastActive time.Time
}

func NewSecureChat(p *ChatPipeline) *SecureChat {
	return &SecureChat{p: p, vehicle: model.DefaultVehicle(), lastActive: time.Now()}
}

// StartNewSession replaces any current session. An empty modelName selects
// the pipeline default; an unknown one fails with ErrNotFound.
func (c *SecureChat) StartNewSession(modelName string) (*model.ChatSession, error) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = c.p.DefaultModel
	}
	if c.p.Models != nil {
		cfg, err := c.p.Models.Get(modelName)
		if err != nil {
			return nil, err
		}
		modelName = cfg.Name
	}

	s := model.NewChatSession(uuid.NewString(), modelName)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.pending = nil
	c.inflight = ""
	c.lastActive = time.Now()
	c.p.Log.Debug().Str("session_id", s.ID).Str("model", modelName).Msg("session started")
	return s.Snapshot(), nil
}

// LoadSession makes an imported session the active one. Its model must be
// served, the same as for StartNewSession.
func (c *SecureChat) LoadSession(s *model.ChatSession) (*model.ChatSession, error) {
	loaded := s.Snapshot()
	if c.p.Models != nil {
		cfg, err := c.p.Models.Get(loaded.Model)
		if err != nil {
			return nil, err
		}
		loaded.Model = cfg.Name
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = loaded
	c.pending = nil
	c.inflight = ""
	c.lastActive = time.Now()
	return loaded.Snapshot(), nil
}

func (c *SecureChat) ClearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	c.pending = nil
	c.inflight = ""
	c.lastActive = time.Now()
}

// CurrentSession returns a snapshot of the active session, or nil.
func (c *SecureChat) CurrentSession() *model.ChatSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return c.session.Snapshot()
}

func (c *SecureChat) Stats() model.SessionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return model.SessionStats{}
	}
	return c.session.Stats()
}

func (c *SecureChat) SelectVehicle(v model.VehicleInfo) error {
	if !v.Valid() {
		return fmt.Errorf("vehicle %q: %w", v.Label(), domain.ErrInvalidArgument)
	}
	c.mu.Lock()
	c.vehicle = v
	c.mu.Unlock()
	return nil
}

func (c *SecureChat) Vehicle() model.VehicleInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vehicle
}

// Idle reports whether nothing happened since before cutoff and no reply is
// in flight.
func (c *SecureChat) Idle(cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight == "" && c.lastActive.Before(cutoff)
}

// SendSecureMessage rate-limits, validates and appends a user message. The
// returned status text is localized and carries non-fatal warnings. On any
// error the session is left untouched.
func (c *SecureChat) SendSecureMessage(ctx context.Context, content, identity string) (*model.Message, string, error) {
	ctx = logging.WithIdentity(ctx, identity)
	log := logging.With(ctx, c.p.Log)
	defer logging.TraceDuration(log, "SecureChat.SendSecureMessage")()

	decision, err := c.p.Limiter.Allow(ctx, identity)
	if err != nil {
		return nil, "", fmt.Errorf("rate limit check: %w", err)
	}
	if !decision.Allowed {
		metrics.IncRateLimitRefusal(string(decision.Reason))
		log.Info().Str("reason", string(decision.Reason)).Msg("message refused by rate limiter")
		return nil, "", domain.NewRejection(domain.ErrRateLimitExceeded, c.p.Text.T("rate."+string(decision.Reason)))
	}

	res := c.p.Validator.ValidateAndSanitize(content)
	metrics.IncValidation(res.IsValid, string(res.RiskLevel))
	if !res.IsValid {
		log.Info().
			Str("risk", string(res.RiskLevel)).
			Str("content", logging.Redact(content, c.p.Dev)).
			Msg("message rejected by validator")
		return nil, "", domain.NewRejection(domain.ErrValidationRejected, strings.Join(res.Warnings, " "))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, "", domain.ErrNoActiveSession
	}
	msg := model.NewMessage(model.RoleUser, res.SanitizedMessage, "")
	c.session.AddMessage(msg)
	c.pending = &msg
	c.lastActive = time.Now()

	status := c.p.Text.T("chat.sent")
	if len(res.Warnings) > 0 {
		status = c.p.Text.T("chat.sent_with_warnings", strings.Join(res.Warnings, " "))
		log.Debug().Strs("warnings", res.Warnings).Msg("message accepted with warnings")
	}
	out := msg
	return &out, status, nil
}

// GetSecureAIResponse answers the pending user message whose content equals
// userMessage. Only the protected message set reaches the provider. The lock
// is released during retrieval and the model call; a reply arriving after
// the session was replaced or cleared is discarded. On failure the session
// is unchanged and the message stays pending.
func (c *SecureChat) GetSecureAIResponse(ctx context.Context, userMessage string, vehicle model.VehicleInfo) (*model.Message, error) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil, domain.ErrNoActiveSession
	}
	if c.pending == nil || c.pending.Content != userMessage {
		c.mu.Unlock()
		return nil, domain.ErrNoPendingMessage
	}
	if c.inflight == c.pending.ID {
		c.mu.Unlock()
		return nil, fmt.Errorf("reply already in progress: %w", domain.ErrNoPendingMessage)
	}
	sessID, modelName, pendingID := c.session.ID, c.session.Model, c.pending.ID
	if vehicle.IsZero() {
		vehicle = c.vehicle
	}
	c.inflight = pendingID
	c.lastActive = time.Now()
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		if c.inflight == pendingID {
			c.inflight = ""
		}
		c.mu.Unlock()
	}

	ctx = logging.WithSessID(ctx, sessID)
	log := logging.With(ctx, c.p.Log)
	defer logging.TraceDuration(log, "SecureChat.GetSecureAIResponse")()

	safeContext, err := c.p.Context.GetSafeContext(ctx, userMessage, vehicle, c.p.topK())
	if err != nil {
		release()
		metrics.IncChatTurn(turnOutcome(err))
		return nil, err
	}
	msgs := c.p.Protector.BuildProtectedMessages(userMessage, safeContext, vehicle)

	reply, err := c.callModel(ctx, log, modelName, msgs)
	if err != nil {
		release()
		metrics.IncChatTurn(turnOutcome(err))
		log.Warn().Err(err).Str("model", modelName).Msg("assistant reply failed")
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == pendingID {
		c.inflight = ""
	}
	if c.session == nil || c.session.ID != sessID {
		metrics.IncChatTurn("discarded")
		return nil, fmt.Errorf("session changed while waiting for reply: %w", domain.ErrNoActiveSession)
	}
	if c.pending == nil || c.pending.ID != pendingID {
		metrics.IncChatTurn("discarded")
		return nil, fmt.Errorf("message superseded while waiting for reply: %w", domain.ErrNoPendingMessage)
	}
	msg := model.NewMessage(model.RoleAssistant, reply, modelName)
	c.session.AddMessage(msg)
	c.pending = nil
	c.lastActive = time.Now()
	metrics.IncChatTurn("ok")

	out := msg
	return &out, nil
}

// Ask sends content and, when accepted, answers it for the selected vehicle.
func (c *SecureChat) Ask(ctx context.Context, content, identity string) (user *model.Message, reply *model.Message, status string, err error) {
	user, status, err = c.SendSecureMessage(ctx, content, identity)
	if err != nil {
		return nil, nil, "", err
	}
	reply, err = c.GetSecureAIResponse(ctx, user.Content, c.Vehicle())
	return user, reply, status, err
}

func (c *SecureChat) callModel(ctx context.Context, log *zerolog.Logger, modelName string, msgs []adapter.Message) (string, error) {
	provider := c.p.AI.Name()
	params := adapter.GenerationParams{Temperature: model.DefaultTemperature, MaxTokens: model.DefaultMaxTokens}
	if c.p.Models != nil {
		params = c.p.Models.Params(modelName)
	}

	actx, cancel := context.WithTimeout(ctx, c.p.aiTimeout())
	defer cancel()

	if n, err := c.p.AI.CountTokens(actx, modelName, msgs); err == nil {
		metrics.ObservePromptEstimate(provider, modelName, n)
	} else {
		log.Debug().Err(err).Msg("token estimate unavailable")
	}

	start := time.Now()
	reply, usage, err := c.p.AI.ChatWithUsage(actx, modelName, msgs, params)
	latency := int(time.Since(start).Milliseconds())
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	metrics.ObserveChatUsage(provider, modelName, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, latency, err == nil)
	if err != nil {
		return "", classifyProviderError(actx, err)
	}
	log.Debug().Int("latency_ms", latency).Int("tokens", usage.TotalTokens).Msg("assistant reply received")
	return reply, nil
}

// classifyProviderError maps a provider error onto the timeout or failure
// kind, keeping the cause in the chain.
func classifyProviderError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrProviderTimeout), errors.Is(err, domain.ErrProviderFailure):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrProviderTimeout, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrProviderFailure, err)
	}
}

func turnOutcome(err error) string {
	if errors.Is(err, domain.ErrProviderTimeout) {
		return "timeout"
	}
	return "failure"
}
