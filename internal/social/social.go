// Package social defines the boundary to the external posting service.
// The core never talks to the network directly; it sees these interfaces
// and the platform/unipile package provides the HTTP implementation.
package social

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Common errors returned by social collaborators.
var (
	// ErrNotConnected is returned when the owner has no linked social
	// account. Surfaced to the user as an actionable condition.
	ErrNotConnected = errors.New("no connected social account")

	// ErrTransient is returned for network-level failures (timeouts,
	// 5xx) that might resolve on a later, user-initiated retry. The
	// core never retries publish calls automatically.
	ErrTransient = errors.New("transient social service error")

	// ErrRejected is returned when the social service refused the
	// request outright (4xx). Retrying without changes will not help.
	ErrRejected = errors.New("social service rejected the request")
)

// Post is one post returned by a topic search.
type Post struct {
	Ref       string `json:"ref"`
	Author    string `json:"author"`
	AuthorURL string `json:"author_url,omitempty"`
	Text      string `json:"text"`
	ShareURL  string `json:"share_url,omitempty"`
}

// Poster publishes owned content to the external social service.
type Poster interface {
	// CreatePost publishes a post body (with an optional image) on
	// behalf of the given owner and returns the external post ID.
	CreatePost(ctx context.Context, userID uuid.UUID, body, imageURL string) (string, error)
}

// Engager reads and reacts to other people's posts on behalf of an owner.
type Engager interface {
	// SearchPosts finds recent posts matching any of the topics.
	SearchPosts(ctx context.Context, userID uuid.UUID, topics []string, limit int) ([]Post, error)

	// CreateComment posts a comment under the referenced post.
	CreateComment(ctx context.Context, userID uuid.UUID, postRef, text string) error

	// AuthorPosts fetches recent posts by a specific author, used by
	// the creator research flow.
	AuthorPosts(ctx context.Context, userID uuid.UUID, authorRef string, limit int) ([]Post, error)
}
