package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dhofer/postflow-api/internal/domain"
)

// TaskStore defines the interface for persisting background tasks.
//
// The claim and terminal methods are the concurrency backbone of the
// executor: Claim succeeds for exactly one caller per pending task, and
// Complete/Fail succeed only while the task is still running, which makes
// the terminal write happen at most once.
type TaskStore interface {
	// Create persists a new pending task.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task scoped to its owner.
	// Returns ErrTaskNotFound if no matching task exists.
	GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.Task, error)

	// ListByOwner retrieves tasks for a user, newest first. When
	// pendingOnly is set, only non-terminal tasks are returned.
	ListByOwner(ctx context.Context, userID uuid.UUID, pendingOnly bool) ([]*domain.Task, error)

	// Claim atomically transitions a task from pending to running and
	// returns the claimed task. Returns ErrClaimLost if the task was
	// already claimed or is no longer pending.
	Claim(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Complete records the terminal success result. Conditional on the
	// task still being in running; returns ErrClaimLost otherwise so a
	// duplicate terminal write is impossible.
	Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error

	// Fail records the terminal failure with a human-readable error.
	// Conditional on the task still being in running.
	Fail(ctx context.Context, id uuid.UUID, errorMsg string) error

	// Heartbeat refreshes updated_at for a running task so the stall
	// monitor doesn't reclaim work that is merely slow.
	Heartbeat(ctx context.Context, id uuid.UUID) error

	// ListPending retrieves pending tasks oldest first, bounded by limit.
	// Used on startup recovery and by the queue refill scan.
	ListPending(ctx context.Context, limit int) ([]*domain.Task, error)

	// RecoverStalled handles running tasks whose updated_at is older
	// than the given age. Tasks below the attempt budget are reset to
	// pending with attempts incremented; the rest are force-failed with
	// a stall-specific error. Returns the tasks that were reset.
	RecoverStalled(
		ctx context.Context,
		olderThan time.Duration,
		maxAttempts int,
	) ([]*domain.Task, error)

	// ListCompletedSince retrieves terminal tasks for an owner whose
	// completed_at is strictly after the cursor, ordered by completed_at
	// ascending. A zero cursor returns all terminal tasks.
	ListCompletedSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*domain.Task, error)

	// DeleteOlderThan garbage-collects terminal tasks past the retention
	// window. Returns the number of rows removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
