// Package middleware provides the HTTP middleware chain: request
// logging, authentication, and per-user request limiting.
package middleware

import (
	"net/http"
	"strings"

	"github.com/dhofer/postflow-api/internal/api/shared"
	"github.com/dhofer/postflow-api/internal/auth"
)

// Auth returns middleware that requires a valid bearer token and
// stores the verified user ID in the request context.
func Auth(verifier auth.TokenVerifier) func(http.Handler) http.Handler {
	if verifier == nil {
		panic("verifier cannot be nil")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "missing authorization header")
				return
			}

			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims, err := verifier.Verify(r.Context(), tokenString)
			if err != nil {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(shared.WithUserID(r.Context(), claims.UserID)))
		})
	}
}
