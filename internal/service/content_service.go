// Package service holds the application services that sit between the
// HTTP handlers and the stores. Services own the business rules:
// ownership checks, state-transition gates, and the scheduling lead
// window. Handlers translate service errors to HTTP; stores only move
// rows.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/metrics"
	"github.com/dhofer/postflow-api/internal/scheduler"
	"github.com/dhofer/postflow-api/internal/store"
)

// ContentService manages the content item lifecycle up to the point
// where the scheduler takes over.
type ContentService struct {
	content   store.ContentStore
	publisher *scheduler.Publisher
	minLead   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewContentService creates a ContentService. minLead is the minimum lead
// time a schedule must have; scheduling closer to now than that is
// rejected so the item cannot become due before the owner can react.
func NewContentService(
	content store.ContentStore,
	publisher *scheduler.Publisher,
	minLead time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
) *ContentService {
	if content == nil {
		panic("content cannot be nil")
	}
	if publisher == nil {
		panic("publisher cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	return &ContentService{
		content:   content,
		publisher: publisher,
		minLead:   minLead,
		logger:    logger.With(slog.String("component", "content_service")),
		metrics:   m,
	}
}

// CreateDraft saves a new draft item for the owner.
func (s *ContentService) CreateDraft(
	ctx context.Context,
	userID uuid.UUID,
	prompt, body, imageURL string,
) (*domain.ContentItem, error) {
	item, err := domain.NewContentItem(userID, prompt, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	item.ImageURL = imageURL

	if err := s.content.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}
	return item, nil
}

// Get retrieves an item, enforcing ownership.
func (s *ContentService) Get(ctx context.Context, id, userID uuid.UUID) (*domain.ContentItem, error) {
	item, err := s.content.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		// Report not-found rather than forbidden so item IDs do not
		// leak across owners.
		return nil, store.ErrContentNotFound
	}
	return item, nil
}

// List retrieves the owner's items, newest first, optionally filtered
// by status.
func (s *ContentService) List(
	ctx context.Context,
	userID uuid.UUID,
	status domain.ContentStatus,
) ([]*domain.ContentItem, error) {
	return s.content.ListByOwner(ctx, userID, status)
}

// UpdateBody changes the body and image of an item that is still
// editable. Items that are publishing or published cannot change.
func (s *ContentService) UpdateBody(
	ctx context.Context,
	id, userID uuid.UUID,
	body, imageURL string,
) (*domain.ContentItem, error) {
	item, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !item.Editable() {
		return nil, domain.ErrContentImmutable
	}
	if body == "" {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, domain.ErrEmptyContentBody)
	}

	item.Body = body
	item.ImageURL = imageURL
	item.UpdatedAt = time.Now().UTC()
	if err := s.content.Update(ctx, item, item.Status); err != nil {
		if store.IsClaimLost(err) {
			return nil, domain.ErrContentInFlight
		}
		return nil, fmt.Errorf("failed to update content: %w", err)
	}
	return item, nil
}

// Schedule sets a future publish time on a draft, failed, or already
// scheduled item; re-scheduling a scheduled item moves its publish
// time. The time must be at least the lead window away.
func (s *ContentService) Schedule(
	ctx context.Context,
	id, userID uuid.UUID,
	at time.Time,
) (*domain.ContentItem, error) {
	item, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !item.CanTransition(domain.ContentStatusScheduled) {
		return nil, domain.ErrContentImmutable
	}
	if at.Before(time.Now().UTC().Add(s.minLead)) {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, domain.ErrScheduleInPast)
	}

	from := item.Status
	at = at.UTC()
	item.Status = domain.ContentStatusScheduled
	item.ScheduledAt = &at
	item.FailureReason = ""
	item.UpdatedAt = time.Now().UTC()
	if err := s.content.Update(ctx, item, from); err != nil {
		if store.IsClaimLost(err) {
			return nil, domain.ErrContentInFlight
		}
		return nil, fmt.Errorf("failed to schedule content: %w", err)
	}

	s.logger.Info("content scheduled",
		slog.String("content_id", item.ID.String()),
		slog.Time("scheduled_at", at))
	return item, nil
}

// Unschedule returns a scheduled item to draft before its publish time
// arrives. The conditional write settles the race with the scheduler:
// if the publishing claim fired first, ours loses and the caller sees
// a conflict instead of the claim being erased.
func (s *ContentService) Unschedule(ctx context.Context, id, userID uuid.UUID) (*domain.ContentItem, error) {
	item, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if item.Status != domain.ContentStatusScheduled {
		return nil, domain.ErrContentImmutable
	}

	item.Status = domain.ContentStatusDraft
	item.ScheduledAt = nil
	item.UpdatedAt = time.Now().UTC()
	if err := s.content.Update(ctx, item, domain.ContentStatusScheduled); err != nil {
		if store.IsClaimLost(err) {
			return nil, domain.ErrContentInFlight
		}
		return nil, fmt.Errorf("failed to unschedule content: %w", err)
	}
	return item, nil
}

// PublishNow claims the item and publishes it immediately, bypassing
// the scheduler. The claim uses the same conditional transition the
// scheduler uses, so an in-flight scheduler publish cannot double-post.
// A draft passes through scheduled with scheduled_at stamped to now, in
// the same transaction as the claim: stuck-publish recovery can then
// requeue the item as immediately due, and a lost claim rolls the
// stamp back.
func (s *ContentService) PublishNow(ctx context.Context, id, userID uuid.UUID) (*domain.ContentItem, error) {
	item, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if item.Status != domain.ContentStatusDraft && item.Status != domain.ContentStatusScheduled {
		return nil, domain.ErrContentImmutable
	}

	err = store.RunInTransaction(ctx, s.content.DB(), func(ctx context.Context, tx *sql.Tx) error {
		txContent := s.content.WithTx(tx)
		if item.Status == domain.ContentStatusDraft {
			now := time.Now().UTC()
			item.Status = domain.ContentStatusScheduled
			item.ScheduledAt = &now
			item.UpdatedAt = now
			if err := txContent.Update(ctx, item, domain.ContentStatusDraft); err != nil {
				return err
			}
		}
		return txContent.ClaimForPublishing(ctx, id, domain.ContentStatusScheduled)
	})
	if err != nil {
		if store.IsClaimLost(err) {
			return nil, domain.ErrContentInFlight
		}
		return nil, fmt.Errorf("failed to claim content for publishing: %w", err)
	}
	s.metrics.IncClaim("publish", "won")

	if err := s.publisher.Publish(ctx, item); err != nil {
		return nil, err
	}
	return s.content.GetByID(ctx, id)
}

// Delete removes an item that is not currently publishing.
func (s *ContentService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	item, err := s.Get(ctx, id, userID)
	if err != nil {
		return err
	}
	if item.Status == domain.ContentStatusPublishing {
		return domain.ErrContentInFlight
	}
	return s.content.Delete(ctx, id, userID)
}
