package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/ratelimit"
	"github.com/dhofer/postflow-api/internal/social"
)

// EngagementService posts owner-approved comments under other people's
// posts, subject to the per-day budget.
type EngagementService struct {
	engager social.Engager
	limiter *ratelimit.DailyLimiter
	logger  *slog.Logger
}

// NewEngagementService creates an EngagementService.
func NewEngagementService(
	engager social.Engager,
	limiter *ratelimit.DailyLimiter,
	logger *slog.Logger,
) *EngagementService {
	if engager == nil {
		panic("engager cannot be nil")
	}
	if limiter == nil {
		panic("limiter cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	return &EngagementService{
		engager: engager,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "engagement_service")),
	}
}

// Budget is the owner's engagement allowance for the current day.
type Budget struct {
	Limit     int `json:"daily_limit"`
	Remaining int `json:"remaining_today"`
}

// Budget reports today's allowance for the owner.
func (s *EngagementService) Budget(ctx context.Context, userID uuid.UUID) (*Budget, error) {
	remaining, err := s.limiter.Remaining(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Budget{Limit: s.limiter.Limit(), Remaining: remaining}, nil
}

// Approve posts an approved comment. The budget unit is consumed with
// an atomic counter write before the external call, so concurrent
// approvals cannot jointly exceed the daily limit; a unit spent on a
// comment the social service then rejects is not refunded.
func (s *EngagementService) Approve(ctx context.Context, userID uuid.UUID, postRef, text string) (*Budget, error) {
	if postRef == "" || text == "" {
		return nil, fmt.Errorf("%w: post reference and comment text are required", domain.ErrValidation)
	}

	allowed, err := s.limiter.TryConsume(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrDailyLimitReached
	}

	if err := s.engager.CreateComment(ctx, userID, postRef, text); err != nil {
		s.logger.Warn("approved comment failed to post",
			slog.String("user_id", userID.String()),
			slog.String("post_ref", postRef),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to post comment: %w", err)
	}

	s.logger.Info("comment posted",
		slog.String("user_id", userID.String()),
		slog.String("post_ref", postRef))
	return s.Budget(ctx, userID)
}
