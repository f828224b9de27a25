package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dhofer/postflow-api/internal/domain"
)

// Handler executes the work for one task type. The returned payload is
// persisted as the task's result on success. Handlers must honor
// context cancellation and should wrap underlying errors with context.
type Handler interface {
	// Execute runs the task to completion. The task has already been
	// claimed by the runner; the handler only does the work.
	Execute(ctx context.Context, t *domain.Task) (json.RawMessage, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, t *domain.Task) (json.RawMessage, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, t *domain.Task) (json.RawMessage, error) {
	return f(ctx, t)
}

// Registry maps task types to their handlers. Registration happens at
// startup; lookups are concurrency-safe.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.TaskType]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[domain.TaskType]Handler),
	}
}

// Register associates a handler with a task type, replacing any
// previous registration.
func (r *Registry) Register(taskType domain.TaskType, h Handler) {
	if h == nil {
		panic("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = h
}

// Lookup returns the handler for a task type.
func (r *Registry) Lookup(taskType domain.TaskType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for task type %q", taskType)
	}
	return h, nil
}
