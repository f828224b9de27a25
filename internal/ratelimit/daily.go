// Package ratelimit enforces the two request-shaping policies of the
// service: the durable per-owner daily budget for auto-engagement side
// effects, and an in-memory per-user request limiter for generation
// endpoints.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dhofer/postflow-api/internal/metrics"
	"github.com/dhofer/postflow-api/internal/store"
)

// DailyLimiter gates auto-engagement side effects against a per-owner,
// per-calendar-day budget backed by the durable counter store. The
// check-and-increment is a single atomic store write, so concurrent
// approvals for the same owner can never jointly exceed the limit.
type DailyLimiter struct {
	counters store.EngagementCounterStore
	limit    int
	metrics  *metrics.Metrics

	// now is swappable for tests.
	now func() time.Time
}

// NewDailyLimiter creates a DailyLimiter with the given daily limit.
func NewDailyLimiter(
	counters store.EngagementCounterStore,
	limit int,
	m *metrics.Metrics,
) *DailyLimiter {
	if counters == nil {
		panic("counters cannot be nil")
	}

	return &DailyLimiter{
		counters: counters,
		limit:    limit,
		metrics:  m,
		now:      time.Now,
	}
}

// TryConsume attempts to consume one unit of today's budget for the
// owner. Returns true when the action is allowed. A false return is a
// normal user-visible condition ("no comments left today"), not an
// error.
func (l *DailyLimiter) TryConsume(ctx context.Context, userID uuid.UUID) (bool, error) {
	allowed, err := l.counters.TryConsume(ctx, userID, l.today(), l.limit)
	if err != nil {
		return false, fmt.Errorf("failed to consume daily budget: %w", err)
	}
	if !allowed {
		l.metrics.IncRateLimitDenied()
	}
	return allowed, nil
}

// Remaining returns how many engagement actions the owner has left
// today, never negative.
func (l *DailyLimiter) Remaining(ctx context.Context, userID uuid.UUID) (int, error) {
	used, err := l.counters.Count(ctx, userID, l.today())
	if err != nil {
		return 0, fmt.Errorf("failed to read daily budget: %w", err)
	}

	remaining := l.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Limit returns the configured daily limit.
func (l *DailyLimiter) Limit() int {
	return l.limit
}

// today returns the current UTC date. Day boundaries are UTC; the
// counter naturally rolls over with the date key.
func (l *DailyLimiter) today() time.Time {
	return l.now().UTC().Truncate(24 * time.Hour)
}
