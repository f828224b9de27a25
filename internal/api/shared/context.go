package shared

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type contextKey string

// UserIDContextKey is the request-context key under which the auth
// middleware stores the verified owner ID.
const UserIDContextKey contextKey = "user_id"

// ErrNoUserID indicates the request context carries no authenticated
// user, which means a handler was mounted outside the auth middleware.
var ErrNoUserID = errors.New("no user ID in request context")

// WithUserID returns a context carrying the authenticated user ID.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// GetUserID extracts the authenticated user ID from the context.
func GetUserID(ctx context.Context) (uuid.UUID, error) {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, ErrNoUserID
	}
	return userID, nil
}
