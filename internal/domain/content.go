package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ContentStatus represents the publication state of a content item.
type ContentStatus string

// Possible content status values
const (
	ContentStatusDraft      ContentStatus = "draft"
	ContentStatusScheduled  ContentStatus = "scheduled"
	ContentStatusPublishing ContentStatus = "publishing"
	ContentStatusPublished  ContentStatus = "published"
	ContentStatusFailed     ContentStatus = "failed"
)

// Common validation errors for ContentItem
var (
	ErrEmptyContentID     = errors.New("content ID cannot be empty")
	ErrEmptyContentUserID = errors.New("content user ID cannot be empty")
	ErrEmptyContentBody   = errors.New("content body cannot be empty")
	ErrInvalidContent     = errors.New("invalid content status")
	ErrMissingScheduleAt  = errors.New("scheduled content must have a scheduled time")
	ErrStaleScheduleAt    = errors.New("only scheduled or publishing content may carry a scheduled time")
	ErrScheduleInPast     = errors.New("scheduled time must be in the future")
	ErrContentImmutable   = errors.New("published content cannot be modified")
	ErrContentInFlight    = errors.New("content is currently being published")
)

// ContentItem represents one social post, from generated draft through
// scheduling and publication. The status field is the single coordination
// point for the publish pipeline: every transition out of scheduled or
// publishing happens through a conditional store update.
type ContentItem struct {
	ID              uuid.UUID     `json:"id"`
	UserID          uuid.UUID     `json:"user_id"`
	Prompt          string        `json:"prompt,omitempty"`
	Body            string        `json:"body"`
	ImageURL        string        `json:"image_url,omitempty"`
	Status          ContentStatus `json:"status"`
	ScheduledAt     *time.Time    `json:"scheduled_at,omitempty"`
	PublishedAt     *time.Time    `json:"published_at,omitempty"`
	ExternalPostID  string        `json:"external_post_id,omitempty"`
	FailureReason   string        `json:"failure_reason,omitempty"`
	PublishAttempts int           `json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewContentItem creates a new draft ContentItem owned by the given user.
// Returns an error if validation fails.
func NewContentItem(userID uuid.UUID, prompt, body string) (*ContentItem, error) {
	now := time.Now().UTC()
	item := &ContentItem{
		ID:        uuid.New(),
		UserID:    userID,
		Prompt:    prompt,
		Body:      body,
		Status:    ContentStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	return item, nil
}

// Validate checks the item's structural invariants: a valid status, and
// scheduled_at present exactly for the scheduled/publishing states.
func (c *ContentItem) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyContentID
	}
	if c.UserID == uuid.Nil {
		return ErrEmptyContentUserID
	}
	if c.Body == "" {
		return ErrEmptyContentBody
	}
	if !isValidContentStatus(c.Status) {
		return ErrInvalidContent
	}
	inPipeline := c.Status == ContentStatusScheduled || c.Status == ContentStatusPublishing
	if inPipeline && c.ScheduledAt == nil {
		return ErrMissingScheduleAt
	}
	if !inPipeline && c.ScheduledAt != nil {
		return ErrStaleScheduleAt
	}
	return nil
}

// Editable reports whether the item may still be changed or deleted by
// its owner. Items that have been handed to the publish pipeline, or
// already published, are off limits.
func (c *ContentItem) Editable() bool {
	return c.Status != ContentStatusPublished && c.Status != ContentStatusPublishing
}

// CanTransition reports whether moving from the item's current status to
// the target status is a legal lifecycle step. Backward transitions and
// skips over publishing are rejected, with two exceptions:
// publishing→scheduled, which the scheduler uses to re-queue a stuck
// item, and scheduled→scheduled, which lets an owner move the publish
// time of a post that has not fired yet.
func (c *ContentItem) CanTransition(to ContentStatus) bool {
	switch c.Status {
	case ContentStatusDraft:
		return to == ContentStatusScheduled || to == ContentStatusPublishing
	case ContentStatusScheduled:
		return to == ContentStatusPublishing || to == ContentStatusScheduled
	case ContentStatusPublishing:
		return to == ContentStatusPublished ||
			to == ContentStatusFailed ||
			to == ContentStatusScheduled
	case ContentStatusFailed:
		return to == ContentStatusScheduled
	default:
		return false
	}
}

func isValidContentStatus(status ContentStatus) bool {
	switch status {
	case ContentStatusDraft, ContentStatusScheduled, ContentStatusPublishing,
		ContentStatusPublished, ContentStatusFailed:
		return true
	default:
		return false
	}
}
