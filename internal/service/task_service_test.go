package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/store"
	"github.com/dhofer/postflow-api/internal/task"
)

// fakeTaskStore is a minimal in-memory store.TaskStore for service
// tests; claim semantics follow the SQL implementation.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

var _ store.TaskStore = (*fakeTaskStore)(nil)

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (f *fakeTaskStore) Create(_ context.Context, t *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tasks[t.ID] = &cp
	return nil
}

func (f *fakeTaskStore) GetByID(_ context.Context, id, userID uuid.UUID) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID {
		return nil, store.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTaskStore) ListByOwner(_ context.Context, userID uuid.UUID, pendingOnly bool) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Task
	for _, t := range f.tasks {
		if t.UserID != userID || (pendingOnly && t.Terminal()) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeTaskStore) Claim(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.Status != domain.TaskStatusPending {
		return nil, store.ErrClaimLost
	}
	t.Status = domain.TaskStatusRunning
	cp := *t
	return &cp, nil
}

func (f *fakeTaskStore) Complete(_ context.Context, id uuid.UUID, result json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.Status != domain.TaskStatusRunning {
		return store.ErrClaimLost
	}
	now := time.Now().UTC()
	t.Status = domain.TaskStatusCompleted
	t.Result = result
	t.CompletedAt = &now
	return nil
}

func (f *fakeTaskStore) Fail(_ context.Context, id uuid.UUID, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.Status != domain.TaskStatusRunning {
		return store.ErrClaimLost
	}
	now := time.Now().UTC()
	t.Status = domain.TaskStatusFailed
	t.ErrorMessage = msg
	t.CompletedAt = &now
	return nil
}

func (f *fakeTaskStore) Heartbeat(context.Context, uuid.UUID) error { return nil }

func (f *fakeTaskStore) ListPending(context.Context, int) ([]*domain.Task, error) {
	return nil, nil
}

func (f *fakeTaskStore) RecoverStalled(context.Context, time.Duration, int) ([]*domain.Task, error) {
	return nil, nil
}

func (f *fakeTaskStore) ListCompletedSince(_ context.Context, userID uuid.UUID, since time.Time) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Task
	for _, t := range f.tasks {
		if t.UserID == userID && t.Terminal() && t.CompletedAt != nil && t.CompletedAt.After(since) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(*out[j].CompletedAt)
	})
	return out, nil
}

func (f *fakeTaskStore) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// finish marks a task terminal with the given completion time.
func (f *fakeTaskStore) finish(t *testing.T, id uuid.UUID, completedAt time.Time) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	tk, ok := f.tasks[id]
	require.True(t, ok)
	tk.Status = domain.TaskStatusCompleted
	tk.Result = json.RawMessage(`{"ok":true}`)
	tk.CompletedAt = &completedAt
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTaskService(taskStore *fakeTaskStore) *TaskService {
	runner := task.NewRunner(taskStore, task.NewRegistry(),
		task.RunnerConfig{QueueSize: 64}, discardLogger(), nil)
	return NewTaskService(taskStore, runner, discardLogger())
}

func TestTaskServiceSubmit(t *testing.T) {
	t.Parallel()

	t.Run("persists a pending task", func(t *testing.T) {
		t.Parallel()
		taskStore := newFakeTaskStore()
		svc := newTaskService(taskStore)
		userID := uuid.New()

		created, err := svc.Submit(context.Background(), userID,
			domain.TaskTypeGenerate, json.RawMessage(`{"prompt":"hello"}`),
			map[string]string{"prompt": "hello"})
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, created.Status)

		stored, err := taskStore.GetByID(context.Background(), created.ID, userID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskTypeGenerate, stored.Type)
	})

	t.Run("rejects unknown task types", func(t *testing.T) {
		t.Parallel()
		svc := newTaskService(newFakeTaskStore())

		_, err := svc.Submit(context.Background(), uuid.New(),
			domain.TaskType("mine-bitcoin"), json.RawMessage(`{}`), nil)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestTaskServiceGetScopesToOwner(t *testing.T) {
	t.Parallel()

	taskStore := newFakeTaskStore()
	svc := newTaskService(taskStore)
	owner := uuid.New()

	created, err := svc.Submit(context.Background(), owner,
		domain.TaskTypeGenerate, json.RawMessage(`{"prompt":"x"}`), nil)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), created.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTaskServiceNotifications(t *testing.T) {
	t.Parallel()

	taskStore := newFakeTaskStore()
	svc := newTaskService(taskStore)
	userID := uuid.New()

	submit := func() *domain.Task {
		tk, err := svc.Submit(context.Background(), userID,
			domain.TaskTypeGenerate, json.RawMessage(`{"prompt":"x"}`), nil)
		require.NoError(t, err)
		return tk
	}

	base := time.Now().UTC()
	first, second, third := submit(), submit(), submit()
	taskStore.finish(t, first.ID, base.Add(time.Minute))
	taskStore.finish(t, second.ID, base.Add(2*time.Minute))
	taskStore.finish(t, third.ID, base.Add(3*time.Minute))

	t.Run("returns completions after the cursor in order", func(t *testing.T) {
		feed, err := svc.Notifications(context.Background(), userID, base.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, feed.Tasks, 2)
		assert.Equal(t, second.ID, feed.Tasks[0].TaskID)
		assert.Equal(t, third.ID, feed.Tasks[1].TaskID)
		assert.Equal(t, base.Add(3*time.Minute), feed.NextSince)
	})

	t.Run("polling with the returned cursor yields nothing new", func(t *testing.T) {
		feed, err := svc.Notifications(context.Background(), userID, base)
		require.NoError(t, err)
		require.Len(t, feed.Tasks, 3)

		next, err := svc.Notifications(context.Background(), userID, feed.NextSince)
		require.NoError(t, err)
		assert.Empty(t, next.Tasks)
		assert.Equal(t, feed.NextSince, next.NextSince)
	})

	t.Run("running tasks are not in the feed", func(t *testing.T) {
		submit()
		feed, err := svc.Notifications(context.Background(), userID, base)
		require.NoError(t, err)
		assert.Len(t, feed.Tasks, 3)
	})
}
