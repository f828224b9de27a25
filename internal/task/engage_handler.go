package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/generation"
	"github.com/dhofer/postflow-api/internal/ratelimit"
	"github.com/dhofer/postflow-api/internal/social"
)

const defaultEngageSearchLimit = 5

// EngagePayload is the input for an engagement-scan task.
type EngagePayload struct {
	Topics   []string `json:"topics"`
	MaxPosts int      `json:"max_posts,omitempty"`
}

// CommentPreview is one drafted comment awaiting the owner's approval.
// Nothing is posted until the owner approves a preview explicitly.
type CommentPreview struct {
	PostRef    string `json:"post_ref"`
	PostAuthor string `json:"post_author"`
	PostText   string `json:"post_text"`
	Comment    string `json:"comment"`
}

// EngageResult is the persisted output of an engagement-scan task.
type EngageResult struct {
	Previews  []CommentPreview `json:"previews"`
	Remaining int              `json:"remaining_today"`
}

// EngageHandler searches for posts matching the owner's topics and
// drafts a comment for each. Drafts are previews only; posting happens
// later through the approval endpoint, where the daily budget is
// consumed.
type EngageHandler struct {
	engager   social.Engager
	generator generation.DraftGenerator
	limiter   *ratelimit.DailyLimiter
	logger    *slog.Logger
}

// NewEngageHandler creates the handler for engage tasks.
func NewEngageHandler(
	engager social.Engager,
	generator generation.DraftGenerator,
	limiter *ratelimit.DailyLimiter,
	logger *slog.Logger,
) *EngageHandler {
	if engager == nil {
		panic("engager cannot be nil")
	}
	if generator == nil {
		panic("generator cannot be nil")
	}
	if limiter == nil {
		panic("limiter cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	return &EngageHandler{
		engager:   engager,
		generator: generator,
		limiter:   limiter,
		logger:    logger.With(slog.String("component", "engage_handler")),
	}
}

// Execute implements Handler.
func (h *EngageHandler) Execute(ctx context.Context, t *domain.Task) (json.RawMessage, error) {
	var payload EngagePayload
	if err := json.Unmarshal(t.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid engage payload: %w", err)
	}
	if len(payload.Topics) == 0 {
		return nil, fmt.Errorf("engage payload is missing topics")
	}
	limit := payload.MaxPosts
	if limit <= 0 {
		limit = defaultEngageSearchLimit
	}

	remaining, err := h.limiter.Remaining(ctx, t.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check daily budget: %w", err)
	}
	if remaining == 0 {
		// No budget left: return an empty scan so the owner sees why,
		// instead of drafting comments they cannot post.
		out, err := json.Marshal(EngageResult{Previews: []CommentPreview{}, Remaining: 0})
		if err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}
		return out, nil
	}
	if limit > remaining {
		limit = remaining
	}

	posts, err := h.engager.SearchPosts(ctx, t.UserID, payload.Topics, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search posts: %w", err)
	}

	previews := make([]CommentPreview, 0, len(posts))
	for _, post := range posts {
		comment, err := h.generator.GenerateComment(ctx, t.UserID, post.Text, post.Author)
		if err != nil {
			// One bad draft should not sink the whole scan.
			h.logger.Warn("failed to draft comment for post",
				slog.String("post_ref", post.Ref),
				slog.String("error", err.Error()))
			continue
		}
		previews = append(previews, CommentPreview{
			PostRef:    post.Ref,
			PostAuthor: post.Author,
			PostText:   post.Text,
			Comment:    comment,
		})
	}

	h.logger.Debug("engagement scan finished",
		slog.String("user_id", t.UserID.String()),
		slog.Int("previews", len(previews)))

	out, err := json.Marshal(EngageResult{Previews: previews, Remaining: remaining})
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return out, nil
}
