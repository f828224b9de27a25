// Package task implements the asynchronous work executor: a worker
// pool that claims tasks from the durable store, dispatches them to
// type-specific handlers, and recovers tasks stranded by crashed or
// stalled workers.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/metrics"
	"github.com/dhofer/postflow-api/internal/store"
)

// ErrQueueFull is returned by Submit when the in-memory dispatch queue
// has no capacity. The task remains pending in the store and will be
// picked up by the next recovery sweep.
var ErrQueueFull = errors.New("task queue is full")

// RunnerConfig holds the tuning knobs for the task runner.
type RunnerConfig struct {
	// WorkerCount is the number of concurrent task workers.
	WorkerCount int
	// QueueSize is the buffer size of the in-memory dispatch queue.
	QueueSize int
	// StallAge is how long a running task may go without a heartbeat
	// before it is considered stalled.
	StallAge time.Duration
	// StallCheckInterval is how often the stall monitor sweeps.
	StallCheckInterval time.Duration
	// MaxStallRetries is how many times a stalled task is requeued
	// before being failed permanently.
	MaxStallRetries int
	// HeartbeatInterval is how often an executing worker refreshes the
	// task's liveness timestamp.
	HeartbeatInterval time.Duration
	// Retention is how long terminal tasks are kept before garbage
	// collection. Zero disables GC.
	Retention time.Duration
	// GCInterval is how often the retention sweep runs.
	GCInterval time.Duration
}

// Runner coordinates task execution. Tasks enter through Submit (or
// the recovery sweeps), are claimed atomically by exactly one worker,
// executed by the handler registered for their type, and finished with
// a conditional terminal write. A task whose claim or terminal write
// loses the race is skipped silently; some other actor owns it.
type Runner struct {
	store    store.TaskStore
	registry *Registry
	config   RunnerConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics

	queue  chan uuid.UUID
	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewRunner creates a task runner. The registry must have handlers for
// every task type that can reach the store.
func NewRunner(
	taskStore store.TaskStore,
	registry *Registry,
	config RunnerConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Runner {
	if taskStore == nil {
		panic("taskStore cannot be nil")
	}
	if registry == nil {
		panic("registry cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.StallAge <= 0 {
		config.StallAge = 5 * time.Minute
	}
	if config.StallCheckInterval <= 0 {
		config.StallCheckInterval = time.Minute
	}
	if config.MaxStallRetries < 0 {
		config.MaxStallRetries = 0
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 30 * time.Second
	}
	if config.GCInterval <= 0 {
		config.GCInterval = time.Hour
	}

	return &Runner{
		store:    taskStore,
		registry: registry,
		config:   config,
		logger:   logger.With(slog.String("component", "task_runner")),
		metrics:  m,
		queue:    make(chan uuid.UUID, config.QueueSize),
	}
}

// Start launches the worker pool and background sweeps, then requeues
// any tasks left pending by a previous process.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return errors.New("runner already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(runCtx, i)
	}

	r.wg.Add(1)
	go r.stallMonitor(runCtx)

	if r.config.Retention > 0 {
		r.wg.Add(1)
		go r.gcLoop(runCtx)
	}

	if err := r.refillPending(runCtx); err != nil {
		r.logger.Warn("failed to recover pending tasks at startup",
			slog.String("error", err.Error()))
	}

	r.logger.Info("task runner started",
		slog.Int("workers", r.config.WorkerCount),
		slog.Int("queue_size", r.config.QueueSize))
	return nil
}

// Stop cancels the background goroutines and waits for in-flight work
// to finish. Tasks still running when the context is cancelled will be
// picked up by the stall monitor of the next process.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
	r.logger.Info("task runner stopped")
}

// Submit enqueues a pending task for execution. The task must already
// exist in the store; Submit only hands its ID to the worker pool.
func (r *Runner) Submit(ctx context.Context, taskID uuid.UUID) error {
	select {
	case r.queue <- taskID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()

	log := r.logger.With(slog.Int("worker_id", id))
	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-r.queue:
			r.execute(ctx, log, taskID)
		}
	}
}

// execute claims and runs a single task. Every failure mode here is
// terminal for this attempt only; the stall monitor owns retries.
func (r *Runner) execute(ctx context.Context, log *slog.Logger, taskID uuid.UUID) {
	t, err := r.store.Claim(ctx, taskID)
	if err != nil {
		if store.IsClaimLost(err) {
			// Another worker won the claim, or the task was already
			// finished. Nothing to do.
			r.metrics.IncClaim("task", "lost")
			return
		}
		log.Error("failed to claim task",
			slog.String("task_id", taskID.String()),
			slog.String("error", err.Error()))
		return
	}
	r.metrics.IncClaim("task", "won")
	r.metrics.TaskStarted()
	defer r.metrics.TaskFinished()

	log = log.With(
		slog.String("task_id", t.ID.String()),
		slog.String("task_type", string(t.Type)))
	log.Debug("task claimed")

	handler, err := r.registry.Lookup(t.Type)
	if err != nil {
		r.finishFail(ctx, log, t, err.Error())
		return
	}

	execCtx, cancelHeartbeat := context.WithCancel(ctx)
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		r.heartbeat(execCtx, log, t.ID)
	}()

	started := time.Now()
	result, execErr := handler.Execute(execCtx, t)
	cancelHeartbeat()
	<-heartbeatDone

	if execErr != nil {
		log.Warn("task execution failed",
			slog.Duration("elapsed", time.Since(started)),
			slog.String("error", execErr.Error()))
		r.finishFail(ctx, log, t, execErr.Error())
		return
	}

	if err := r.store.Complete(ctx, t.ID, result); err != nil {
		if store.IsClaimLost(err) {
			// The stall monitor reclaimed the task mid-execution. Its
			// outcome supersedes ours.
			log.Warn("task completion lost to concurrent recovery")
			return
		}
		log.Error("failed to record task completion",
			slog.String("error", err.Error()))
		return
	}

	r.metrics.IncTaskExecution(string(t.Type), "completed")
	log.Info("task completed", slog.Duration("elapsed", time.Since(started)))
}

func (r *Runner) finishFail(ctx context.Context, log *slog.Logger, t *domain.Task, msg string) {
	if err := r.store.Fail(ctx, t.ID, msg); err != nil {
		if store.IsClaimLost(err) {
			log.Warn("task failure record lost to concurrent recovery")
			return
		}
		log.Error("failed to record task failure",
			slog.String("error", err.Error()))
		return
	}
	r.metrics.IncTaskExecution(string(t.Type), "failed")
}

// heartbeat refreshes the task's liveness timestamp until the execution
// context is cancelled, keeping the stall monitor off a healthy worker.
func (r *Runner) heartbeat(ctx context.Context, log *slog.Logger, taskID uuid.UUID) {
	ticker := time.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.store.Heartbeat(ctx, taskID); err != nil && !store.IsClaimLost(err) {
				log.Warn("task heartbeat failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// stallMonitor periodically resets tasks whose workers have gone
// silent, then refills the queue from the store. The refill is what
// eventually runs tasks whose enqueue was dropped under queue pressure,
// so a durable pending row never needs a process restart to execute.
func (r *Runner) stallMonitor(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StallCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reset, err := r.store.RecoverStalled(ctx, r.config.StallAge, r.config.MaxStallRetries)
			if err != nil {
				r.logger.Error("stall recovery sweep failed",
					slog.String("error", err.Error()))
			} else {
				for _, t := range reset {
					r.logger.Warn("requeueing stalled task",
						slog.String("task_id", t.ID.String()),
						slog.Int("attempts", t.Attempts))
				}
			}
			if err := r.refillPending(ctx); err != nil {
				r.logger.Error("queue refill sweep failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// refillPending requeues pending tasks from the store, oldest first:
// at startup these are tasks a previous process left behind, and on
// each stall sweep they are tasks (including freshly reset stalled
// ones) that missed or fell out of the in-memory queue. Requeueing a
// task that is already queued is harmless; the claim decides who runs.
func (r *Runner) refillPending(ctx context.Context) error {
	pending, err := r.store.ListPending(ctx, r.config.QueueSize)
	if err != nil {
		return fmt.Errorf("failed to list pending tasks: %w", err)
	}

	requeued := 0
	for _, t := range pending {
		if err := r.Submit(ctx, t.ID); err != nil {
			break
		}
		requeued++
	}
	if requeued > 0 {
		r.logger.Debug("refilled task queue", slog.Int("count", requeued))
	}
	return nil
}

func (r *Runner) gcLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-r.config.Retention)
			deleted, err := r.store.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				r.logger.Error("task retention sweep failed",
					slog.String("error", err.Error()))
				continue
			}
			if deleted > 0 {
				r.logger.Info("deleted expired tasks", slog.Int64("count", deleted))
			}
		}
	}
}
