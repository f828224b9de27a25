package middleware

import (
	"net/http"

	"github.com/dhofer/postflow-api/internal/api/shared"
	"github.com/dhofer/postflow-api/internal/ratelimit"
)

// PerUserRateLimit returns middleware that rejects requests exceeding
// the per-user token bucket with 429. Mount it after Auth; requests
// without an identity are rejected.
func PerUserRateLimit(limiter *ratelimit.PerUserLimiter) func(http.Handler) http.Handler {
	if limiter == nil {
		panic("limiter cannot be nil")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := shared.GetUserID(r.Context())
			if err != nil {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			if !limiter.Allow(userID) {
				shared.RespondWithError(w, r, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
