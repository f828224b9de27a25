package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dhofer/postflow-api/internal/api/shared"
	"github.com/dhofer/postflow-api/internal/service"
)

// EngagementHandler serves the comment-approval endpoints.
type EngagementHandler struct {
	service  *service.EngagementService
	validate *validator.Validate
}

// NewEngagementHandler creates an EngagementHandler.
func NewEngagementHandler(svc *service.EngagementService) *EngagementHandler {
	if svc == nil {
		panic("service cannot be nil")
	}
	return &EngagementHandler{
		service:  svc,
		validate: validator.New(),
	}
}

// ApproveCommentRequest is the payload for approving a drafted comment.
type ApproveCommentRequest struct {
	PostRef string `json:"post_ref" validate:"required"`
	Text    string `json:"text" validate:"required"`
}

// Budget handles GET /engagement/remaining.
func (h *EngagementHandler) Budget(w http.ResponseWriter, r *http.Request) {
	userID, err := shared.GetUserID(r.Context())
	if err != nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	budget, err := h.service.Budget(r.Context(), userID)
	if err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, budget)
}

// Approve handles POST /engagement/approve.
func (h *EngagementHandler) Approve(w http.ResponseWriter, r *http.Request) {
	userID, err := shared.GetUserID(r.Context())
	if err != nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ApproveCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	budget, err := h.service.Approve(r.Context(), userID, req.PostRef, req.Text)
	if err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, budget)
}
