package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/generation"
	"github.com/dhofer/postflow-api/internal/store"
)

// GeneratePayload is the input for a post-generation task.
type GeneratePayload struct {
	Prompt string                   `json:"prompt"`
	Voice  *generation.VoiceProfile `json:"voice_profile,omitempty"`
}

// GenerateResult is the persisted output of a post-generation task.
type GenerateResult struct {
	ContentID string `json:"content_id"`
	Body      string `json:"body"`
}

// GenerateHandler drafts a post from a prompt and saves it as a draft
// content item ready for review and scheduling.
type GenerateHandler struct {
	generator generation.DraftGenerator
	content   store.ContentStore
	logger    *slog.Logger
}

// NewGenerateHandler creates the handler for generate tasks.
func NewGenerateHandler(
	generator generation.DraftGenerator,
	content store.ContentStore,
	logger *slog.Logger,
) *GenerateHandler {
	if generator == nil {
		panic("generator cannot be nil")
	}
	if content == nil {
		panic("content cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	return &GenerateHandler{
		generator: generator,
		content:   content,
		logger:    logger.With(slog.String("component", "generate_handler")),
	}
}

// Execute implements Handler.
func (h *GenerateHandler) Execute(ctx context.Context, t *domain.Task) (json.RawMessage, error) {
	var payload GeneratePayload
	if err := json.Unmarshal(t.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid generate payload: %w", err)
	}
	if payload.Prompt == "" {
		return nil, fmt.Errorf("generate payload is missing a prompt")
	}

	body, err := h.generator.GeneratePost(ctx, t.UserID, payload.Prompt, payload.Voice)
	if err != nil {
		return nil, fmt.Errorf("failed to generate post draft: %w", err)
	}

	item, err := domain.NewContentItem(t.UserID, payload.Prompt, body)
	if err != nil {
		return nil, fmt.Errorf("generated draft failed validation: %w", err)
	}
	if err := h.content.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	h.logger.Debug("draft created from prompt",
		slog.String("content_id", item.ID.String()),
		slog.String("user_id", t.UserID.String()))

	result := GenerateResult{ContentID: item.ID.String(), Body: body}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return out, nil
}
