// Package api contains the HTTP handlers. Handlers decode and validate
// requests, delegate to the services, and translate outcomes to HTTP;
// no business rules live here.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dhofer/postflow-api/internal/api/shared"
	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/service"
)

// ContentHandler serves the content item endpoints.
type ContentHandler struct {
	service  *service.ContentService
	validate *validator.Validate
}

// NewContentHandler creates a ContentHandler.
func NewContentHandler(svc *service.ContentService) *ContentHandler {
	if svc == nil {
		panic("service cannot be nil")
	}
	return &ContentHandler{
		service:  svc,
		validate: validator.New(),
	}
}

// CreateContentRequest is the payload for creating a draft.
type CreateContentRequest struct {
	Prompt   string `json:"prompt,omitempty"`
	Body     string `json:"body" validate:"required"`
	ImageURL string `json:"image_url,omitempty" validate:"omitempty,url"`
}

// UpdateContentRequest is the payload for editing a draft.
type UpdateContentRequest struct {
	Body     string `json:"body" validate:"required"`
	ImageURL string `json:"image_url,omitempty" validate:"omitempty,url"`
}

// ScheduleContentRequest is the payload for scheduling an item.
type ScheduleContentRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// Create handles POST /content.
func (h *ContentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := shared.GetUserID(r.Context())
	if err != nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	item, err := h.service.CreateDraft(r.Context(), userID, req.Prompt, req.Body, req.ImageURL)
	if err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, item)
}

// Get handles GET /content/{id}.
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.identify(w, r)
	if !ok {
		return
	}

	item, err := h.service.Get(r.Context(), id, userID)
	if err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, item)
}

// List handles GET /content with an optional status filter.
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := shared.GetUserID(r.Context())
	if err != nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	status := domain.ContentStatus(r.URL.Query().Get("status"))
	items, err := h.service.List(r.Context(), userID, status)
	if err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, items)
}

// Update handles PATCH /content/{id}.
func (h *ContentHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.identify(w, r)
	if !ok {
		return
	}

	var req UpdateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	item, err := h.service.UpdateBody(r.Context(), id, userID, req.Body, req.ImageURL)
	if err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, item)
}

// Schedule handles POST /content/{id}/schedule.
func (h *ContentHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.identify(w, r)
	if !ok {
		return
	}

	var req ScheduleContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	item, err := h.service.Schedule(r.Context(), id, userID, req.ScheduledAt)
	if err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, item)
}

// Unschedule handles POST /content/{id}/unschedule.
func (h *ContentHandler) Unschedule(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.identify(w, r)
	if !ok {
		return
	}

	item, err := h.service.Unschedule(r.Context(), id, userID)
	if err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, item)
}

// Publish handles POST /content/{id}/publish.
func (h *ContentHandler) Publish(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.identify(w, r)
	if !ok {
		return
	}

	item, err := h.service.PublishNow(r.Context(), id, userID)
	if err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, item)
}

// Delete handles DELETE /content/{id}.
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.identify(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, userID); err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}

// identify resolves the authenticated user and the {id} path parameter,
// writing the error response itself when either is missing.
func (h *ContentHandler) identify(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, err := shared.GetUserID(r.Context())
	if err != nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "authentication required")
		return uuid.Nil, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid content ID")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}
