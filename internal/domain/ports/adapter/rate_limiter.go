package adapter

import (
	"context"

	"tcross-assistant/internal/domain/model"
)

// RateLimiter decides whether identity may send another message now.
// An allowed decision has already been recorded against the identity.
type RateLimiter interface {
	Allow(ctx context.Context, identity string) (model.RateDecision, error)
	Unblock(ctx context.Context, identity string) error
}
