package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a background task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// TaskType identifies which operation a task performs.
type TaskType string

// Supported task types
const (
	TaskTypeGenerate TaskType = "generate"
	TaskTypeEngage   TaskType = "engage"
	TaskTypeResearch TaskType = "research"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID     = errors.New("task ID cannot be empty")
	ErrEmptyTaskUserID = errors.New("task user ID cannot be empty")
	ErrInvalidTaskType = errors.New("invalid task type")
	ErrInvalidTask     = errors.New("invalid task status")
)

// Task represents one asynchronous operation requested by a client. The
// client receives the task ID immediately and polls for the terminal
// result; the row is the only channel between worker and client.
type Task struct {
	ID           uuid.UUID       `json:"task_id"`
	UserID       uuid.UUID       `json:"user_id"`
	Type         TaskType        `json:"task_type"`
	Status       TaskStatus      `json:"status"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Attempts     int             `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"-"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// NewTask creates a pending Task for the given owner. The payload is the
// operation input; metadata carries small display context (e.g. the
// prompt text) for clients that render notifications.
func NewTask(
	userID uuid.UUID,
	taskType TaskType,
	payload json.RawMessage,
	metadata map[string]string,
) (*Task, error) {
	now := time.Now().UTC()
	t := &Task{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      taskType,
		Status:    TaskStatusPending,
		Payload:   payload,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate checks the task's structural invariants.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.UserID == uuid.Nil {
		return ErrEmptyTaskUserID
	}
	if !IsValidTaskType(t.Type) {
		return ErrInvalidTaskType
	}
	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTask
	}
	return nil
}

// Terminal reports whether the task has reached a state from which no
// further transition occurs.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// IsValidTaskType reports whether the given type is one of the supported
// task types.
func IsValidTaskType(taskType TaskType) bool {
	switch taskType {
	case TaskTypeGenerate, TaskTypeEngage, TaskTypeResearch:
		return true
	default:
		return false
	}
}

func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}
