package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/generation"
	"github.com/dhofer/postflow-api/internal/social"
)

const defaultResearchPostLimit = 10

// ResearchPayload is the input for a creator-research task.
type ResearchPayload struct {
	AuthorRef string `json:"author_ref"`
	MaxPosts  int    `json:"max_posts,omitempty"`
}

// ResearchResult is the persisted output of a creator-research task.
type ResearchResult struct {
	AuthorRef string        `json:"author_ref"`
	Posts     []social.Post `json:"posts"`
	Summary   string        `json:"summary"`
}

// ResearchHandler fetches a creator's recent posts and summarizes what
// they write about, to inform the owner's own content planning.
type ResearchHandler struct {
	engager   social.Engager
	generator generation.DraftGenerator
	logger    *slog.Logger
}

// NewResearchHandler creates the handler for research tasks.
func NewResearchHandler(
	engager social.Engager,
	generator generation.DraftGenerator,
	logger *slog.Logger,
) *ResearchHandler {
	if engager == nil {
		panic("engager cannot be nil")
	}
	if generator == nil {
		panic("generator cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	return &ResearchHandler{
		engager:   engager,
		generator: generator,
		logger:    logger.With(slog.String("component", "research_handler")),
	}
}

// Execute implements Handler.
func (h *ResearchHandler) Execute(ctx context.Context, t *domain.Task) (json.RawMessage, error) {
	var payload ResearchPayload
	if err := json.Unmarshal(t.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid research payload: %w", err)
	}
	if payload.AuthorRef == "" {
		return nil, fmt.Errorf("research payload is missing an author reference")
	}
	limit := payload.MaxPosts
	if limit <= 0 {
		limit = defaultResearchPostLimit
	}

	posts, err := h.engager.AuthorPosts(ctx, t.UserID, payload.AuthorRef, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch author posts: %w", err)
	}

	summary := ""
	if len(posts) > 0 {
		var sb strings.Builder
		sb.WriteString("Summarize the themes, tone, and posting style of this creator based on their recent posts:\n\n")
		for i, post := range posts {
			fmt.Fprintf(&sb, "Post %d:\n%s\n\n", i+1, post.Text)
		}
		summary, err = h.generator.GeneratePost(ctx, t.UserID, sb.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize author posts: %w", err)
		}
	}

	h.logger.Debug("creator research finished",
		slog.String("user_id", t.UserID.String()),
		slog.String("author_ref", payload.AuthorRef),
		slog.Int("posts", len(posts)))

	out, err := json.Marshal(ResearchResult{
		AuthorRef: payload.AuthorRef,
		Posts:     posts,
		Summary:   summary,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return out, nil
}
