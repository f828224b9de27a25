package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/store"
)

func TestHandleServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", store.ErrContentNotFound, http.StatusNotFound},
		{"task not found", store.ErrTaskNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", store.ErrNotFound), http.StatusNotFound},
		{"validation", fmt.Errorf("%w: body required", domain.ErrValidation), http.StatusBadRequest},
		{"daily limit", domain.ErrDailyLimitReached, http.StatusTooManyRequests},
		{"immutable content", domain.ErrContentImmutable, http.StatusConflict},
		{"content in flight", domain.ErrContentInFlight, http.StatusConflict},
		{"forbidden", domain.ErrUnauthorized, http.StatusForbidden},
		{"unknown errors stay opaque", errors.New("pq: connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)

			HandleServiceError(rec, req, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
			if tc.wantStatus == http.StatusInternalServerError {
				assert.NotContains(t, body.Error, "pq:")
			}
		})
	}
}

func TestRespondWithJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	RespondWithJSON(rec, req, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"abc"}`, rec.Body.String())
}

func TestUserIDContext(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	_, err := GetUserID(req.Context())
	assert.ErrorIs(t, err, ErrNoUserID)
}
