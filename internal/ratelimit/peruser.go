package ratelimit

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// PerUserLimiter tracks a token-bucket limiter per user for the
// generation endpoints. Unlike the daily budget, this is in-memory
// and resets on restart; it exists to smooth bursts, not to enforce
// a durable quota.
type PerUserLimiter struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewPerUserLimiter creates a limiter allowing rps requests per second
// with the given burst per user.
func NewPerUserLimiter(rps float64, burst int) *PerUserLimiter {
	return &PerUserLimiter{
		limiters: make(map[uuid.UUID]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether the user may proceed with one request now.
func (p *PerUserLimiter) Allow(userID uuid.UUID) bool {
	return p.limiterFor(userID).Allow()
}

func (p *PerUserLimiter) limiterFor(userID uuid.UUID) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[userID]
	if !ok {
		l = rate.NewLimiter(p.rps, p.burst)
		p.limiters[userID] = l
	}
	return l
}
