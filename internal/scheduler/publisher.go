package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/metrics"
	"github.com/dhofer/postflow-api/internal/social"
	"github.com/dhofer/postflow-api/internal/store"
)

// Publisher performs the publish side effect for one content item and
// records the terminal outcome. The caller must hold the publishing
// claim on the item before calling Publish.
type Publisher struct {
	content store.ContentStore
	poster  social.Poster
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPublisher creates a Publisher.
func NewPublisher(
	content store.ContentStore,
	poster social.Poster,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Publisher {
	if content == nil {
		panic("content cannot be nil")
	}
	if poster == nil {
		panic("poster cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	return &Publisher{
		content: content,
		poster:  poster,
		logger:  logger.With(slog.String("component", "publisher")),
		metrics: m,
	}
}

// Publish posts the item to the external service and records success or
// failure. The external call happens at most once per invocation; a
// failure leaves the item failed with a reason rather than retrying.
func (p *Publisher) Publish(ctx context.Context, item *domain.ContentItem) error {
	log := p.logger.With(
		slog.String("content_id", item.ID.String()),
		slog.String("user_id", item.UserID.String()))

	externalID, err := p.poster.CreatePost(ctx, item.UserID, item.Body, item.ImageURL)
	if err != nil {
		reason := publishFailureReason(err)
		log.Warn("publish failed",
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		p.metrics.IncPublish("failed")

		if markErr := p.content.MarkPublishFailed(ctx, item.ID, reason); markErr != nil {
			if store.IsClaimLost(markErr) {
				return nil
			}
			return fmt.Errorf("failed to record publish failure: %w", markErr)
		}
		return nil
	}

	if err := p.content.MarkPublished(ctx, item.ID, externalID, time.Now().UTC()); err != nil {
		if store.IsClaimLost(err) {
			// The item left publishing state under us (stuck-item
			// recovery fired). The post is live; log loudly so an
			// operator can reconcile.
			log.Error("post published but state update lost",
				slog.String("external_post_id", externalID))
			return nil
		}
		return fmt.Errorf("failed to record publish success: %w", err)
	}

	p.metrics.IncPublish("published")
	log.Info("content published",
		slog.String("external_post_id", externalID))
	return nil
}

// publishFailureReason maps poster errors to the user-visible failure
// reason stored on the item.
func publishFailureReason(err error) string {
	switch {
	case errors.Is(err, social.ErrNotConnected):
		return "no connected social account"
	case errors.Is(err, social.ErrRejected):
		return "the social service rejected the post"
	case errors.Is(err, social.ErrTransient):
		return "the social service was unavailable"
	default:
		return "publishing failed unexpectedly"
	}
}
