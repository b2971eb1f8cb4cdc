package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tcross-assistant/internal/infra/metrics"
)

// Sweeper is implemented by usecase.SessionHub.
type Sweeper interface {
	Sweep(ctx context.Context, idleTTL time.Duration) int
}

// SessionJanitor periodically evicts idle conversations.
type SessionJanitor struct {
	interval time.Duration
	idleTTL  time.Duration
	hub      Sweeper
	log      *zerolog.Logger
}

func NewSessionJanitor(interval, idleTTL time.Duration, hub Sweeper, logger *zerolog.Logger) *SessionJanitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if idleTTL <= 0 {
		idleTTL = 2 * time.Hour
	}
	jl := logger.With().Str("component", "SessionJanitor").Logger()
	return &SessionJanitor{interval: interval, idleTTL: idleTTL, hub: hub, log: &jl}
}

// Run blocks until ctx is cancelled.
func (j *SessionJanitor) Run(ctx context.Context) error {
	j.log.Info().Dur("interval", j.interval).Dur("idle_ttl", j.idleTTL).Msg("Starting session janitor")
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("Stopping session janitor")
			return ctx.Err()
		case <-ticker.C:
			j.SweepOnce(ctx)
		}
	}
}

func (j *SessionJanitor) SweepOnce(ctx context.Context) int {
	n := j.hub.Sweep(ctx, j.idleTTL)
	if n > 0 {
		metrics.IncSessionsEvicted(n)
		j.log.Info().Int("count", n).Msg("idle conversations evicted")
	}
	return n
}
