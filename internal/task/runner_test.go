package task

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/store"
)

// memTaskStore is an in-memory store.TaskStore with the same claim
// semantics as the SQL implementation: conditional transitions gated on
// the current status.
type memTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

var _ store.TaskStore = (*memTaskStore)(nil)

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (m *memTaskStore) Create(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memTaskStore) GetByID(_ context.Context, id, userID uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.UserID != userID {
		return nil, store.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskStore) ListByOwner(_ context.Context, userID uuid.UUID, pendingOnly bool) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Task
	for _, t := range m.tasks {
		if t.UserID != userID {
			continue
		}
		if pendingOnly && t.Terminal() {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memTaskStore) Claim(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != domain.TaskStatusPending {
		return nil, store.ErrClaimLost
	}
	t.Status = domain.TaskStatusRunning
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, nil
}

func (m *memTaskStore) Complete(_ context.Context, id uuid.UUID, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != domain.TaskStatusRunning {
		return store.ErrClaimLost
	}
	now := time.Now().UTC()
	t.Status = domain.TaskStatusCompleted
	t.Result = result
	t.CompletedAt = &now
	return nil
}

func (m *memTaskStore) Fail(_ context.Context, id uuid.UUID, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != domain.TaskStatusRunning {
		return store.ErrClaimLost
	}
	now := time.Now().UTC()
	t.Status = domain.TaskStatusFailed
	t.ErrorMessage = errorMsg
	t.CompletedAt = &now
	return nil
}

func (m *memTaskStore) Heartbeat(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok && t.Status == domain.TaskStatusRunning {
		t.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *memTaskStore) ListPending(_ context.Context, limit int) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Task
	for _, t := range m.tasks {
		if t.Status == domain.TaskStatusPending && len(out) < limit {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTaskStore) RecoverStalled(_ context.Context, olderThan time.Duration, maxAttempts int) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var reset []*domain.Task
	for _, t := range m.tasks {
		if t.Status != domain.TaskStatusRunning || !t.UpdatedAt.Before(cutoff) {
			continue
		}
		if t.Attempts < maxAttempts {
			t.Status = domain.TaskStatusPending
			t.Attempts++
			t.UpdatedAt = time.Now().UTC()
			cp := *t
			reset = append(reset, &cp)
		} else {
			now := time.Now().UTC()
			t.Status = domain.TaskStatusFailed
			t.ErrorMessage = "task stalled: worker did not finish after repeated attempts"
			t.CompletedAt = &now
		}
	}
	return reset, nil
}

func (m *memTaskStore) ListCompletedSince(_ context.Context, userID uuid.UUID, since time.Time) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Task
	for _, t := range m.tasks {
		if t.UserID == userID && t.Terminal() && t.CompletedAt != nil && t.CompletedAt.After(since) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTaskStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, t := range m.tasks {
		if t.Terminal() && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memTaskStore) get(id uuid.UUID) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.tasks[id]
	return &cp
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPendingTask(t *testing.T, taskStore *memTaskStore, taskType domain.TaskType) *domain.Task {
	t.Helper()
	tk, err := domain.NewTask(uuid.New(), taskType, json.RawMessage(`{}`), nil)
	require.NoError(t, err)
	require.NoError(t, taskStore.Create(context.Background(), tk))
	return tk
}

func startRunner(t *testing.T, taskStore *memTaskStore, registry *Registry, cfg RunnerConfig) *Runner {
	t.Helper()
	runner := NewRunner(taskStore, registry, cfg, testLogger(), nil)
	require.NoError(t, runner.Start(context.Background()))
	t.Cleanup(runner.Stop)
	return runner
}

func TestRunnerExecutesTaskOnce(t *testing.T) {
	t.Parallel()

	taskStore := newMemTaskStore()
	var executions atomic.Int64
	registry := NewRegistry()
	registry.Register(domain.TaskTypeGenerate, HandlerFunc(
		func(_ context.Context, _ *domain.Task) (json.RawMessage, error) {
			executions.Add(1)
			return json.RawMessage(`{"ok":true}`), nil
		}))

	runner := startRunner(t, taskStore, registry, RunnerConfig{WorkerCount: 4, QueueSize: 32})
	tk := newPendingTask(t, taskStore, domain.TaskTypeGenerate)

	// Submitting the same ID repeatedly must still execute it once: the
	// claim is the gate, not the queue.
	for i := 0; i < 10; i++ {
		require.NoError(t, runner.Submit(context.Background(), tk.ID))
	}

	require.Eventually(t, func() bool {
		return taskStore.get(tk.ID).Status == domain.TaskStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(1), executions.Load())
	got := taskStore.get(tk.ID)
	assert.JSONEq(t, `{"ok":true}`, string(got.Result))
	require.NotNil(t, got.CompletedAt)
}

func TestRunnerRecordsHandlerFailure(t *testing.T) {
	t.Parallel()

	taskStore := newMemTaskStore()
	registry := NewRegistry()
	registry.Register(domain.TaskTypeEngage, HandlerFunc(
		func(_ context.Context, _ *domain.Task) (json.RawMessage, error) {
			return nil, assert.AnError
		}))

	runner := startRunner(t, taskStore, registry, RunnerConfig{WorkerCount: 1, QueueSize: 8})
	tk := newPendingTask(t, taskStore, domain.TaskTypeEngage)
	require.NoError(t, runner.Submit(context.Background(), tk.ID))

	require.Eventually(t, func() bool {
		return taskStore.get(tk.ID).Status == domain.TaskStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	got := taskStore.get(tk.ID)
	assert.Contains(t, got.ErrorMessage, assert.AnError.Error())
	require.NotNil(t, got.CompletedAt)
}

func TestRunnerFailsTaskWithoutHandler(t *testing.T) {
	t.Parallel()

	taskStore := newMemTaskStore()
	runner := startRunner(t, taskStore, NewRegistry(), RunnerConfig{WorkerCount: 1, QueueSize: 8})
	tk := newPendingTask(t, taskStore, domain.TaskTypeResearch)
	require.NoError(t, runner.Submit(context.Background(), tk.ID))

	require.Eventually(t, func() bool {
		return taskStore.get(tk.ID).Status == domain.TaskStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, taskStore.get(tk.ID).ErrorMessage, "no handler registered")
}

func TestRunnerRecoversPendingAtStartup(t *testing.T) {
	t.Parallel()

	taskStore := newMemTaskStore()
	done := make(chan uuid.UUID, 1)
	registry := NewRegistry()
	registry.Register(domain.TaskTypeGenerate, HandlerFunc(
		func(_ context.Context, tk *domain.Task) (json.RawMessage, error) {
			done <- tk.ID
			return json.RawMessage(`{}`), nil
		}))

	// The task exists before the runner starts, as if a previous
	// process crashed between accepting and executing it.
	tk := newPendingTask(t, taskStore, domain.TaskTypeGenerate)
	startRunner(t, taskStore, registry, RunnerConfig{WorkerCount: 1, QueueSize: 8})

	select {
	case got := <-done:
		assert.Equal(t, tk.ID, got)
	case <-time.After(2 * time.Second):
		t.Fatal("recovered task was never executed")
	}
}

func TestRunnerRefillsDroppedPendingTask(t *testing.T) {
	t.Parallel()

	taskStore := newMemTaskStore()
	done := make(chan uuid.UUID, 1)
	registry := NewRegistry()
	registry.Register(domain.TaskTypeGenerate, HandlerFunc(
		func(_ context.Context, tk *domain.Task) (json.RawMessage, error) {
			done <- tk.ID
			return json.RawMessage(`{}`), nil
		}))

	startRunner(t, taskStore, registry, RunnerConfig{
		WorkerCount:        1,
		QueueSize:          8,
		StallAge:           time.Minute,
		StallCheckInterval: 20 * time.Millisecond,
	})

	// The row exists but was never submitted, as if the enqueue was
	// dropped under queue pressure. The periodic sweep must pick it up.
	tk := newPendingTask(t, taskStore, domain.TaskTypeGenerate)

	select {
	case got := <-done:
		assert.Equal(t, tk.ID, got)
	case <-time.After(2 * time.Second):
		t.Fatal("pending task was never swept into the queue")
	}
}

func TestRunnerStallMonitorRequeuesAndRetries(t *testing.T) {
	t.Parallel()

	taskStore := newMemTaskStore()
	var executions atomic.Int64
	registry := NewRegistry()
	registry.Register(domain.TaskTypeGenerate, HandlerFunc(
		func(_ context.Context, _ *domain.Task) (json.RawMessage, error) {
			executions.Add(1)
			return json.RawMessage(`{}`), nil
		}))

	// Simulate a crashed worker: the task sits in running with a stale
	// heartbeat and no local goroutine owns it.
	tk := newPendingTask(t, taskStore, domain.TaskTypeGenerate)
	_, err := taskStore.Claim(context.Background(), tk.ID)
	require.NoError(t, err)
	taskStore.mu.Lock()
	taskStore.tasks[tk.ID].UpdatedAt = time.Now().UTC().Add(-time.Hour)
	taskStore.mu.Unlock()

	startRunner(t, taskStore, registry, RunnerConfig{
		WorkerCount:        1,
		QueueSize:          8,
		StallAge:           time.Minute,
		StallCheckInterval: 20 * time.Millisecond,
		MaxStallRetries:    2,
	})

	require.Eventually(t, func() bool {
		return taskStore.get(tk.ID).Status == domain.TaskStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(1), executions.Load())
	assert.Equal(t, 1, taskStore.get(tk.ID).Attempts)
}

func TestRunnerStallMonitorFailsExhaustedTask(t *testing.T) {
	t.Parallel()

	taskStore := newMemTaskStore()
	tk := newPendingTask(t, taskStore, domain.TaskTypeGenerate)
	_, err := taskStore.Claim(context.Background(), tk.ID)
	require.NoError(t, err)
	taskStore.mu.Lock()
	taskStore.tasks[tk.ID].Attempts = 2
	taskStore.tasks[tk.ID].UpdatedAt = time.Now().UTC().Add(-time.Hour)
	taskStore.mu.Unlock()

	startRunner(t, taskStore, NewRegistry(), RunnerConfig{
		WorkerCount:        1,
		QueueSize:          8,
		StallAge:           time.Minute,
		StallCheckInterval: 20 * time.Millisecond,
		MaxStallRetries:    2,
	})

	require.Eventually(t, func() bool {
		return taskStore.get(tk.ID).Status == domain.TaskStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, taskStore.get(tk.ID).ErrorMessage, "stalled")
}

func TestRunnerSubmitQueueFull(t *testing.T) {
	t.Parallel()

	taskStore := newMemTaskStore()
	// Not started: nothing drains the queue.
	runner := NewRunner(taskStore, NewRegistry(), RunnerConfig{WorkerCount: 1, QueueSize: 1}, testLogger(), nil)

	require.NoError(t, runner.Submit(context.Background(), uuid.New()))
	assert.ErrorIs(t, runner.Submit(context.Background(), uuid.New()), ErrQueueFull)
}
