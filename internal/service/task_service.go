package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/store"
	"github.com/dhofer/postflow-api/internal/task"
)

// TaskService accepts new work items and exposes their progress. The
// durable row is written before the runner sees the ID, so a submit
// survives a crash between the two steps: startup recovery will pick
// the task up.
type TaskService struct {
	tasks  store.TaskStore
	runner *task.Runner
	logger *slog.Logger
}

// NewTaskService creates a TaskService.
func NewTaskService(tasks store.TaskStore, runner *task.Runner, logger *slog.Logger) *TaskService {
	if tasks == nil {
		panic("tasks cannot be nil")
	}
	if runner == nil {
		panic("runner cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	return &TaskService{
		tasks:  tasks,
		runner: runner,
		logger: logger.With(slog.String("component", "task_service")),
	}
}

// Submit validates and persists a new task, then hands it to the
// runner. A full queue is not an error for the caller: the task is
// durable and will run when capacity returns.
func (s *TaskService) Submit(
	ctx context.Context,
	userID uuid.UUID,
	taskType domain.TaskType,
	payload json.RawMessage,
	metadata map[string]string,
) (*domain.Task, error) {
	if !domain.IsValidTaskType(taskType) {
		return nil, fmt.Errorf("%w: unknown task type %q", domain.ErrValidation, taskType)
	}

	t, err := domain.NewTask(userID, taskType, payload, metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := s.runner.Submit(ctx, t.ID); err != nil {
		if errors.Is(err, task.ErrQueueFull) {
			s.logger.Warn("task queue full, deferring to recovery sweep",
				slog.String("task_id", t.ID.String()))
		} else {
			return nil, fmt.Errorf("failed to enqueue task: %w", err)
		}
	}
	return t, nil
}

// Get retrieves a task scoped to its owner.
func (s *TaskService) Get(ctx context.Context, id, userID uuid.UUID) (*domain.Task, error) {
	return s.tasks.GetByID(ctx, id, userID)
}

// List retrieves the owner's tasks, newest first. pendingOnly narrows
// the list to tasks still waiting or running.
func (s *TaskService) List(ctx context.Context, userID uuid.UUID, pendingOnly bool) ([]*domain.Task, error) {
	return s.tasks.ListByOwner(ctx, userID, pendingOnly)
}

// Notification is one entry in the completion feed: a task that
// reached a terminal state after the caller's cursor.
type Notification struct {
	TaskID      uuid.UUID         `json:"task_id"`
	Type        domain.TaskType   `json:"task_type"`
	Status      domain.TaskStatus `json:"status"`
	Result      json.RawMessage   `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// NotificationFeed is one page of the completion feed plus the cursor
// the client should send next. The cursor is the completion time of the
// newest entry, or the caller's own cursor when the page is empty.
type NotificationFeed struct {
	Tasks     []Notification `json:"tasks"`
	NextSince time.Time      `json:"next_since"`
}

// Notifications returns the owner's tasks that finished strictly after
// since, oldest first. Polling with the returned cursor yields every
// completion exactly once.
func (s *TaskService) Notifications(ctx context.Context, userID uuid.UUID, since time.Time) (*NotificationFeed, error) {
	done, err := s.tasks.ListCompletedSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed tasks: %w", err)
	}

	feed := &NotificationFeed{
		Tasks:     make([]Notification, 0, len(done)),
		NextSince: since,
	}
	for _, t := range done {
		if t.CompletedAt == nil {
			continue
		}
		feed.Tasks = append(feed.Tasks, Notification{
			TaskID:      t.ID,
			Type:        t.Type,
			Status:      t.Status,
			Result:      t.Result,
			Error:       t.ErrorMessage,
			Metadata:    t.Metadata,
			CompletedAt: *t.CompletedAt,
		})
		feed.NextSince = *t.CompletedAt
	}
	return feed, nil
}
