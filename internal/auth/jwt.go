package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dhofer/postflow-api/internal/config"
)

// jwtVerifier validates HMAC-signed JWTs whose subject is the owner's
// user ID.
type jwtVerifier struct {
	secret []byte
}

var _ TokenVerifier = (*jwtVerifier)(nil)

// NewJWTVerifier creates a TokenVerifier from the auth configuration.
func NewJWTVerifier(cfg config.AuthConfig) (TokenVerifier, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT secret is required")
	}
	return &jwtVerifier{secret: []byte(cfg.JWTSecret)}, nil
}

// Verify implements TokenVerifier.
func (v *jwtVerifier) Verify(_ context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user ID", ErrInvalidToken)
	}

	return &Claims{UserID: userID}, nil
}
