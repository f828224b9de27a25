package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/dhofer/postflow-api/internal/config"
	"github.com/dhofer/postflow-api/internal/generation"
)

// GeminiGenerator implements the generation.DraftGenerator interface using
// Google's Gemini API to draft posts and comments.
type GeminiGenerator struct {
	logger *slog.Logger
	config config.LLMConfig
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a new GeminiGenerator with the provided
// dependencies. Returns an error if the configuration is invalid or the
// client cannot be created.
func NewGeminiGenerator(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.LLMConfig,
) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &GeminiGenerator{
		logger: logger.With(slog.String("component", "gemini_generator")),
		config: cfg,
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Ensure GeminiGenerator implements generation.DraftGenerator
var _ generation.DraftGenerator = (*GeminiGenerator)(nil)

// GeneratePost implements generation.DraftGenerator.GeneratePost
func (g *GeminiGenerator) GeneratePost(
	ctx context.Context,
	userID uuid.UUID,
	prompt string,
	voice *generation.VoiceProfile,
) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt cannot be empty", generation.ErrGenerationFailed)
	}

	g.logger.InfoContext(ctx, "generating post draft",
		"user_id", userID,
		"prompt_length", len(prompt))

	text, err := g.generate(ctx, buildPostPrompt(prompt, voice))
	if err != nil {
		return "", err
	}

	return text, nil
}

// GenerateComment implements generation.DraftGenerator.GenerateComment
func (g *GeminiGenerator) GenerateComment(
	ctx context.Context,
	userID uuid.UUID,
	postContent, postAuthor string,
) (string, error) {
	if postContent == "" {
		return "", fmt.Errorf("%w: post content cannot be empty", generation.ErrGenerationFailed)
	}

	g.logger.InfoContext(ctx, "generating comment draft",
		"user_id", userID,
		"post_author", postAuthor)

	text, err := g.generate(ctx, buildCommentPrompt(postContent, postAuthor))
	if err != nil {
		return "", err
	}

	return text, nil
}

// generate performs one Gemini call and normalizes its failure modes to
// the generation package's sentinel errors.
func (g *GeminiGenerator) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		g.logger.ErrorContext(ctx, "Gemini API call failed", "error", err)
		return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", generation.ErrContentBlocked
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty response text", generation.ErrInvalidResponse)
	}

	return text, nil
}

func buildPostPrompt(prompt string, voice *generation.VoiceProfile) string {
	var b strings.Builder
	b.WriteString("You are a ghostwriter drafting a social media post.\n")
	if voice != nil {
		if voice.Tone != "" {
			fmt.Fprintf(&b, "Write in this tone: %s.\n", voice.Tone)
		}
		if len(voice.Topics) > 0 {
			fmt.Fprintf(&b, "The author usually writes about: %s.\n",
				strings.Join(voice.Topics, ", "))
		}
		if voice.Structure != "" {
			fmt.Fprintf(&b, "Structure the post like this: %s.\n", voice.Structure)
		}
	}
	b.WriteString("Write only the post body, no preamble.\n\nTopic: ")
	b.WriteString(prompt)
	return b.String()
}

func buildCommentPrompt(postContent, postAuthor string) string {
	var b strings.Builder
	b.WriteString("Write a short, thoughtful comment (2-3 sentences) reacting to the post below. ")
	b.WriteString("Add a concrete perspective; never be sycophantic. ")
	b.WriteString("Write only the comment text.\n\n")
	if postAuthor != "" {
		fmt.Fprintf(&b, "Post author: %s\n", postAuthor)
	}
	fmt.Fprintf(&b, "Post:\n%s\n", postContent)
	return b.String()
}
