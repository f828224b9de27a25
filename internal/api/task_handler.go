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

// TaskHandler serves the task submission and progress endpoints.
type TaskHandler struct {
	service  *service.TaskService
	validate *validator.Validate
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(svc *service.TaskService) *TaskHandler {
	if svc == nil {
		panic("service cannot be nil")
	}
	return &TaskHandler{
		service:  svc,
		validate: validator.New(),
	}
}

// SubmitTaskRequest is the payload for submitting a new task.
type SubmitTaskRequest struct {
	TaskType string            `json:"task_type" validate:"required"`
	Input    json.RawMessage   `json:"input" validate:"required"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SubmitTaskResponse acknowledges an accepted task.
type SubmitTaskResponse struct {
	TaskID uuid.UUID         `json:"task_id"`
	Status domain.TaskStatus `json:"status"`
}

// Submit handles POST /tasks. It returns 202: the task is accepted and
// durable, not yet done.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, err := shared.GetUserID(r.Context())
	if err != nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	t, err := h.service.Submit(r.Context(), userID, domain.TaskType(req.TaskType), req.Input, req.Metadata)
	if err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitTaskResponse{
		TaskID: t.ID,
		Status: t.Status,
	})
}

// Get handles GET /tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := shared.GetUserID(r.Context())
	if err != nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid task ID")
		return
	}

	t, err := h.service.Get(r.Context(), id, userID)
	if err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// List handles GET /tasks. ?pending_only=true narrows to unfinished tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := shared.GetUserID(r.Context())
	if err != nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	pendingOnly := r.URL.Query().Get("pending_only") == "true"
	tasks, err := h.service.List(r.Context(), userID, pendingOnly)
	if err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, tasks)
}

// Notifications handles GET /tasks/notifications?since=<RFC3339>. An
// absent cursor means "everything retained".
func (h *TaskHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	userID, err := shared.GetUserID(r.Context())
	if err != nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
	}

	feed, err := h.service.Notifications(r.Context(), userID, since)
	if err != nil {
		shared.HandleServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, feed)
}
