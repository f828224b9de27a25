package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/platform/logger"
	"github.com/dhofer/postflow-api/internal/store"
)

// PostgresContentStore implements the store.ContentStore interface
// using a PostgreSQL database as the storage backend.
type PostgresContentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresContentStore creates a new PostgreSQL implementation of the
// ContentStore interface. It accepts a database connection or transaction
// that should be initialized and managed by the caller.
func NewPostgresContentStore(db store.DBTX, logger *slog.Logger) *PostgresContentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresContentStore{
		db:     db,
		logger: logger.With(slog.String("component", "content_store")),
	}
}

// Ensure PostgresContentStore implements store.ContentStore
var _ store.ContentStore = (*PostgresContentStore)(nil)

// WithTx returns a new ContentStore bound to the given transaction.
func (s *PostgresContentStore) WithTx(tx store.DBTX) store.ContentStore {
	return &PostgresContentStore{
		db:     tx,
		logger: s.logger,
	}
}

// DB implements store.ContentStore.DB.
func (s *PostgresContentStore) DB() *sql.DB {
	db, _ := s.db.(*sql.DB)
	return db
}

const contentColumns = `id, user_id, prompt, body, image_url, status,
	scheduled_at, published_at, external_post_id, failure_reason,
	publish_attempts, created_at, updated_at`

// Create implements store.ContentStore.Create
func (s *PostgresContentStore) Create(ctx context.Context, item *domain.ContentItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := item.Validate(); err != nil {
		log.Warn("content validation failed during create",
			slog.String("error", err.Error()),
			slog.String("content_id", item.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO content_items
			(id, user_id, prompt, body, image_url, status, scheduled_at,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		item.ID,
		item.UserID,
		nullString(item.Prompt),
		item.Body,
		nullString(item.ImageURL),
		item.Status,
		item.ScheduledAt,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create content item",
			slog.String("error", err.Error()),
			slog.String("content_id", item.ID.String()))
		return MapError(err)
	}

	return nil
}

// GetByID implements store.ContentStore.GetByID
func (s *PostgresContentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE id = $1`

	item, err := scanContentItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrContentNotFound
		}
		return nil, MapError(err)
	}
	return item, nil
}

// ListByOwner implements store.ContentStore.ListByOwner
func (s *PostgresContentStore) ListByOwner(
	ctx context.Context,
	userID uuid.UUID,
	status domain.ContentStatus,
) ([]*domain.ContentItem, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if status != "" {
		query := `SELECT ` + contentColumns + `
			FROM content_items
			WHERE user_id = $1 AND status = $2
			ORDER BY created_at DESC`
		rows, err = s.db.QueryContext(ctx, query, userID, status)
	} else {
		query := `SELECT ` + contentColumns + `
			FROM content_items
			WHERE user_id = $1
			ORDER BY created_at DESC`
		rows, err = s.db.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectContentItems(rows)
}

// Update implements store.ContentStore.Update. The status condition in
// the WHERE clause makes an owner edit lose to any transition that fired
// between the caller's read and this write, instead of overwriting it.
func (s *PostgresContentStore) Update(
	ctx context.Context,
	item *domain.ContentItem,
	from domain.ContentStatus,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE content_items
		SET prompt = $1, body = $2, image_url = $3, status = $4,
			scheduled_at = $5, failure_reason = $6, updated_at = $7
		WHERE id = $8 AND user_id = $9 AND status = $10
	`

	result, err := s.db.ExecContext(ctx, query,
		nullString(item.Prompt),
		item.Body,
		nullString(item.ImageURL),
		item.Status,
		item.ScheduledAt,
		nullString(item.FailureReason),
		time.Now().UTC(),
		item.ID,
		item.UserID,
		from,
	)
	if err != nil {
		log.Error("failed to update content item",
			slog.String("error", err.Error()),
			slog.String("content_id", item.ID.String()))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, getErr := s.GetByID(ctx, item.ID); getErr == nil {
			return store.ErrClaimLost
		}
		return store.ErrContentNotFound
	}

	return nil
}

// Delete implements store.ContentStore.Delete. Published and in-flight
// items are protected by the status guard in the WHERE clause.
func (s *PostgresContentStore) Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	query := `
		DELETE FROM content_items
		WHERE id = $1 AND user_id = $2
			AND status NOT IN ('published', 'publishing')
	`

	result, err := s.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Either the item doesn't exist or it is protected; distinguish
		// so the API can return the right status code.
		if _, getErr := s.GetByID(ctx, id); getErr == nil {
			return store.ErrDeleteFailed
		}
		return store.ErrContentNotFound
	}

	return nil
}

// ListDue implements store.ContentStore.ListDue
func (s *PostgresContentStore) ListDue(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.ContentItem, error) {
	query := `SELECT ` + contentColumns + `
		FROM content_items
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectContentItems(rows)
}

// ClaimForPublishing implements store.ContentStore.ClaimForPublishing.
// The WHERE clause on the current status is the exactly-once gate: a
// concurrent claimant finds the row already in publishing and updates
// zero rows.
func (s *PostgresContentStore) ClaimForPublishing(
	ctx context.Context,
	id uuid.UUID,
	from domain.ContentStatus,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE content_items
		SET status = 'publishing', updated_at = $1
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id, from)
	if err != nil {
		log.Error("failed to claim content item",
			slog.String("error", err.Error()),
			slog.String("content_id", id.String()))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrClaimLost
	}

	return nil
}

// MarkPublished implements store.ContentStore.MarkPublished
func (s *PostgresContentStore) MarkPublished(
	ctx context.Context,
	id uuid.UUID,
	externalPostID string,
	publishedAt time.Time,
) error {
	query := `
		UPDATE content_items
		SET status = 'published', published_at = $1, external_post_id = $2,
			scheduled_at = NULL, failure_reason = NULL, updated_at = $3
		WHERE id = $4 AND status = 'publishing'
	`

	result, err := s.db.ExecContext(ctx, query, publishedAt, externalPostID, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrClaimLost
	}

	return nil
}

// MarkPublishFailed implements store.ContentStore.MarkPublishFailed
func (s *PostgresContentStore) MarkPublishFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE content_items
		SET status = 'failed', failure_reason = $1, scheduled_at = NULL,
			updated_at = $2
		WHERE id = $3 AND status = 'publishing'
	`

	result, err := s.db.ExecContext(ctx, query, reason, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrClaimLost
	}

	return nil
}

// RecoverStuckPublishing implements store.ContentStore.RecoverStuckPublishing
func (s *PostgresContentStore) RecoverStuckPublishing(
	ctx context.Context,
	olderThan time.Duration,
	maxAttempts int,
) (int64, int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	cutoff := time.Now().UTC().Add(-olderThan)

	requeueQuery := `
		UPDATE content_items
		SET status = 'scheduled', publish_attempts = publish_attempts + 1,
			updated_at = $1
		WHERE status = 'publishing' AND updated_at < $2
			AND publish_attempts < $3
	`

	result, err := s.db.ExecContext(ctx, requeueQuery, time.Now().UTC(), cutoff, maxAttempts)
	if err != nil {
		return 0, 0, MapError(err)
	}
	requeued, err := result.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	failQuery := `
		UPDATE content_items
		SET status = 'failed',
			failure_reason = 'publish stalled: gave up after repeated attempts',
			scheduled_at = NULL, updated_at = $1
		WHERE status = 'publishing' AND updated_at < $2
			AND publish_attempts >= $3
	`

	result, err = s.db.ExecContext(ctx, failQuery, time.Now().UTC(), cutoff, maxAttempts)
	if err != nil {
		return requeued, 0, MapError(err)
	}
	failed, err := result.RowsAffected()
	if err != nil {
		return requeued, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if requeued > 0 || failed > 0 {
		log.Info("recovered stuck publishing items",
			slog.Int64("requeued", requeued),
			slog.Int64("failed", failed))
	}

	return requeued, failed, nil
}

// scanContentItem reads one content row from a *sql.Row.
func scanContentItem(row *sql.Row) (*domain.ContentItem, error) {
	var (
		item           domain.ContentItem
		prompt         sql.NullString
		imageURL       sql.NullString
		externalPostID sql.NullString
		failureReason  sql.NullString
		scheduledAt    sql.NullTime
		publishedAt    sql.NullTime
	)

	err := row.Scan(
		&item.ID, &item.UserID, &prompt, &item.Body, &imageURL, &item.Status,
		&scheduledAt, &publishedAt, &externalPostID, &failureReason,
		&item.PublishAttempts, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	applyContentNullables(&item, prompt, imageURL, externalPostID, failureReason, scheduledAt, publishedAt)
	return &item, nil
}

// collectContentItems reads all content rows from a *sql.Rows.
func collectContentItems(rows *sql.Rows) ([]*domain.ContentItem, error) {
	var items []*domain.ContentItem

	for rows.Next() {
		var (
			item           domain.ContentItem
			prompt         sql.NullString
			imageURL       sql.NullString
			externalPostID sql.NullString
			failureReason  sql.NullString
			scheduledAt    sql.NullTime
			publishedAt    sql.NullTime
		)

		err := rows.Scan(
			&item.ID, &item.UserID, &prompt, &item.Body, &imageURL, &item.Status,
			&scheduledAt, &publishedAt, &externalPostID, &failureReason,
			&item.PublishAttempts, &item.CreatedAt, &item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content row: %w", err)
		}

		applyContentNullables(&item, prompt, imageURL, externalPostID, failureReason, scheduledAt, publishedAt)
		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content rows: %w", err)
	}

	return items, nil
}

func applyContentNullables(
	item *domain.ContentItem,
	prompt, imageURL, externalPostID, failureReason sql.NullString,
	scheduledAt, publishedAt sql.NullTime,
) {
	item.Prompt = prompt.String
	item.ImageURL = imageURL.String
	item.ExternalPostID = externalPostID.String
	item.FailureReason = failureReason.String
	if scheduledAt.Valid {
		t := scheduledAt.Time
		item.ScheduledAt = &t
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		item.PublishedAt = &t
	}
}

// nullString converts an empty string to a SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
