package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"tcross-assistant/internal/domain/model"
	"tcross-assistant/internal/infra/metrics"
)

// ledgerPurger is implemented by limiters that keep a local ledger.
type ledgerPurger interface {
	Purge() int
}

// SessionHub maps identities (JWT subject, client IP, Telegram chat) to
// their conversation. Conversations are built lazily and share one pipeline.
type SessionHub struct {
	p *ChatPipeline

	mu    sync.Mutex
	chats map[string]*SecureChat
}

func NewSessionHub(p *ChatPipeline) *SessionHub {
	return &SessionHub{p: p, chats: make(map[string]*SecureChat)}
}

// Get returns the conversation of identity, starting one with the default
// model on first use.
func (h *SessionHub) Get(identity string) (*SecureChat, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.chats[identity]; ok {
		return c, nil
	}
	c := NewSecureChat(h.p)
	if _, err := c.StartNewSession(""); err != nil {
		return nil, err
	}
	h.chats[identity] = c
	metrics.SetActiveConversations(len(h.chats))
	return c, nil
}

func (h *SessionHub) Drop(identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.chats, identity)
	metrics.SetActiveConversations(len(h.chats))
}

func (h *SessionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.chats)
}

// Identities returns the known identities in sorted order.
func (h *SessionHub) Identities() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.chats))
	for id := range h.chats {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Sweep evicts conversations idle for longer than idleTTL and purges empty
// rate ledgers. It returns the number of evicted conversations.
func (h *SessionHub) Sweep(ctx context.Context, idleTTL time.Duration) int {
	cutoff := time.Now().Add(-idleTTL)

	h.mu.Lock()
	evicted := 0
	for id, c := range h.chats {
		if ctx.Err() != nil {
			break
		}
		if c.Idle(cutoff) {
			delete(h.chats, id)
			evicted++
		}
	}
	metrics.SetActiveConversations(len(h.chats))
	h.mu.Unlock()

	if p, ok := h.p.Limiter.(ledgerPurger); ok {
		if n := p.Purge(); n > 0 {
			h.p.Log.Debug().Int("identities", n).Msg("rate ledgers purged")
		}
	}
	return evicted
}

// Models exposes the shared model registry to presentation layers.
func (h *SessionHub) Models() ModelConfigUseCase { return h.p.Models }

// Vehicles returns the supported catalog.
func (h *SessionHub) Vehicles() (years, versions []string) {
	return model.VehicleYears, model.VehicleVersions
}

// Unblock lifts a rate-limit block for identity.
func (h *SessionHub) Unblock(ctx context.Context, identity string) error {
	return h.p.Limiter.Unblock(ctx, identity)
}
