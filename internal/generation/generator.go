package generation

import (
	"context"

	"github.com/google/uuid"
)

// VoiceProfile captures the writing characteristics extracted from an
// owner's past posts. It conditions generated drafts so they read like
// the owner wrote them.
type VoiceProfile struct {
	Tone      string   `json:"tone,omitempty"`
	Topics    []string `json:"topics,omitempty"`
	Structure string   `json:"structure,omitempty"`
}

// DraftGenerator defines the interface for drafting post and comment text.
// This interface serves as a boundary between the application core and
// external AI/LLM services, following the hexagonal architecture pattern.
type DraftGenerator interface {
	// GeneratePost drafts a post in the owner's voice for the given
	// prompt. Returns the drafted body text.
	GeneratePost(ctx context.Context, userID uuid.UUID, prompt string, voice *VoiceProfile) (string, error)

	// GenerateComment drafts a short comment reacting to someone else's
	// post, suitable for the engagement flow.
	GenerateComment(ctx context.Context, userID uuid.UUID, postContent, postAuthor string) (string, error)
}
