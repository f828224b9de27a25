package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/dhofer/postflow-api/internal/domain"
)

// ContentStore defines the interface for content item data persistence.
// All publish-pipeline transitions (claim, mark published/failed, recover
// stuck) are conditional updates: they succeed only when the row is still
// in the expected source state, and return ErrClaimLost otherwise.
type ContentStore interface {
	// Create saves a new content item to the store.
	Create(ctx context.Context, item *domain.ContentItem) error

	// GetByID retrieves a content item by its unique ID.
	// Returns ErrContentNotFound if the item does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error)

	// ListByOwner retrieves content items owned by the given user,
	// newest first, optionally filtered by status.
	ListByOwner(
		ctx context.Context,
		userID uuid.UUID,
		status domain.ContentStatus,
	) ([]*domain.ContentItem, error)

	// Update persists body, status, and schedule changes for an item,
	// conditional on the row still being in the from status the caller
	// read. Returns ErrClaimLost when the row moved in the meantime, so
	// an owner edit can never overwrite a concurrent publish claim.
	Update(ctx context.Context, item *domain.ContentItem, from domain.ContentStatus) error

	// Delete removes an item. Returns ErrDeleteFailed if the item is
	// published or currently publishing.
	Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	// ListDue retrieves scheduled items whose scheduled_at is at or
	// before now, ordered by scheduled_at ascending, bounded by limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ContentItem, error)

	// ClaimForPublishing atomically transitions an item from the given
	// source status to publishing. Exactly one concurrent caller
	// observes success; the rest get ErrClaimLost.
	ClaimForPublishing(ctx context.Context, id uuid.UUID, from domain.ContentStatus) error

	// MarkPublished records a successful publish: sets status published,
	// published_at, and the external post ID, and clears scheduled_at.
	// Conditional on the item still being in publishing.
	MarkPublished(ctx context.Context, id uuid.UUID, externalPostID string, publishedAt time.Time) error

	// MarkPublishFailed records a failed publish with a user-visible
	// reason and clears scheduled_at. Conditional on the item still
	// being in publishing.
	MarkPublishFailed(ctx context.Context, id uuid.UUID, reason string) error

	// RecoverStuckPublishing handles items left in publishing longer
	// than the grace period. Items below the attempt budget go back to
	// scheduled with attempts incremented; the rest are forced to
	// failed. Returns how many items were re-queued and how many were
	// failed.
	RecoverStuckPublishing(
		ctx context.Context,
		olderThan time.Duration,
		maxAttempts int,
	) (requeued, failed int64, err error)

	// WithTx returns a new ContentStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller,
	// typically through RunInTransaction.
	WithTx(tx DBTX) ContentStore

	// DB exposes the root connection for RunInTransaction. Returns nil
	// when the store is already bound to a transaction.
	DB() *sql.DB
}
