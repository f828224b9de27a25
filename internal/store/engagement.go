package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EngagementCounterStore tracks the per-owner, per-calendar-day count of
// auto-posted engagement actions.
type EngagementCounterStore interface {
	// TryConsume atomically increments the counter for (userID, day)
	// if and only if the current count is below limit. It returns true
	// when the increment happened. Two concurrent calls at the limit
	// boundary can never both succeed: the check and increment are one
	// store write.
	TryConsume(ctx context.Context, userID uuid.UUID, day time.Time, limit int) (bool, error)

	// Count returns the number of consumed actions for (userID, day).
	// Days with no counter row count as zero.
	Count(ctx context.Context, userID uuid.UUID, day time.Time) (int, error)
}
