// Package auth verifies bearer tokens on incoming requests. Token
// issuance lives in the identity service; this package only validates
// tokens and extracts the owner identity.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Common authentication errors.
var (
	// ErrInvalidToken is returned when a token fails signature or
	// structural validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when a token's expiry has passed.
	ErrExpiredToken = errors.New("token has expired")
)

// Claims is the verified identity carried by a token.
type Claims struct {
	UserID uuid.UUID
}

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, tokenString string) (*Claims, error)
}
