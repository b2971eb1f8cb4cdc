package safety

import (
	"context"
	"sync"
	"time"

	"tcross-assistant/internal/domain/model"
	"tcross-assistant/internal/domain/ports/adapter"
)

const (
	DefaultPerMinute = 10
	DefaultPerHour   = 50

	ledgerHorizon = 2 * time.Hour
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is an in-process sliding-window limiter keyed by identity.
// Prune, check and record happen under one lock so concurrent requests of
// the same identity cannot slip past a threshold.
type RateLimiter struct {
	mu        sync.Mutex
	ledger    map[string][]time.Time
	blocked   map[string]struct{}
	perMinute int
	perHour   int
	now       func() time.Time
}

func NewRateLimiter(perMinute, perHour int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	if perHour <= 0 {
		perHour = DefaultPerHour
	}
	return &RateLimiter{
		ledger:    make(map[string][]time.Time),
		blocked:   make(map[string]struct{}),
		perMinute: perMinute,
		perHour:   perHour,
		now:       time.Now,
	}
}

// WithClock swaps the time source; used by tests.
func (r *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
	return r
}

func (r *RateLimiter) Allow(_ context.Context, identity string) (model.RateDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	stamps := prune(r.ledger[identity], now.Add(-ledgerHorizon))
	r.ledger[identity] = stamps

	if _, ok := r.blocked[identity]; ok {
		return model.Deny(model.RateReasonBlocked), nil
	}
	if countSince(stamps, now.Add(-time.Minute)) >= r.perMinute {
		return model.Deny(model.RateReasonPerMinute), nil
	}
	if countSince(stamps, now.Add(-time.Hour)) >= r.perHour {
		// permanent until Unblock
		r.blocked[identity] = struct{}{}
		return model.Deny(model.RateReasonPerHour), nil
	}

	r.ledger[identity] = append(stamps, now)
	return model.Allow(), nil
}

// Unblock lifts an hourly block. It is an operator action; nothing in the
// limiter calls it.
func (r *RateLimiter) Unblock(_ context.Context, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blocked, identity)
	delete(r.ledger, identity)
	return nil
}

func (r *RateLimiter) isBlocked(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.blocked[identity]
	return ok
}

// Purge drops ledgers with no entry inside the horizon and returns how many
// identities were removed. Blocked identities are kept.
func (r *RateLimiter) Purge() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-ledgerHorizon)
	removed := 0
	for id, stamps := range r.ledger {
		stamps = prune(stamps, cutoff)
		if len(stamps) == 0 {
			delete(r.ledger, id)
			removed++
			continue
		}
		r.ledger[id] = stamps
	}
	return removed
}

// prune drops stamps at or before cutoff. Stamps are kept in insertion order,
// which is chronological under a monotonic clock.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[i:]...)
}

func countSince(stamps []time.Time, since time.Time) int {
	n := 0
	for j := len(stamps) - 1; j >= 0; j-- {
		if !stamps[j].After(since) {
			break
		}
		n++
	}
	return n
}
