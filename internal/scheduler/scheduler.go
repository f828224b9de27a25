// Package scheduler implements the publish scheduler: a polling loop
// that finds content items whose scheduled time has arrived, claims
// each one with a conditional state transition, and hands the winners
// to the publisher. The conditional claim is what makes it safe to run
// several scheduler instances against the same database.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/metrics"
	"github.com/dhofer/postflow-api/internal/store"
)

// Config holds the scheduler's tuning knobs.
type Config struct {
	// Interval is how often the scheduler polls for due items.
	Interval time.Duration
	// BatchSize caps how many due items one tick processes.
	BatchSize int
	// MaxConcurrent caps how many publishes run at once within a tick.
	MaxConcurrent int
	// StuckAge is how long an item may sit in publishing state before
	// recovery considers its publisher dead.
	StuckAge time.Duration
	// MaxPublishRetries is how many times a stuck item is rescheduled
	// before being failed permanently.
	MaxPublishRetries int
}

// Scheduler polls for due content and publishes it.
type Scheduler struct {
	content   store.ContentStore
	publisher *Publisher
	config    Config
	logger    *slog.Logger
	metrics   *metrics.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New creates a Scheduler.
func New(
	content store.ContentStore,
	publisher *Publisher,
	config Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Scheduler {
	if content == nil {
		panic("content cannot be nil")
	}
	if publisher == nil {
		panic("publisher cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	if config.StuckAge <= 0 {
		config.StuckAge = 5 * time.Minute
	}
	if config.MaxPublishRetries < 0 {
		config.MaxPublishRetries = 0
	}

	return &Scheduler{
		content:   content,
		publisher: publisher,
		config:    config,
		logger:    logger.With(slog.String("component", "scheduler")),
		metrics:   m,
	}
}

// Start launches the polling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(runCtx)

	s.logger.Info("scheduler started",
		slog.Duration("interval", s.config.Interval),
		slog.Int("batch_size", s.config.BatchSize))
	return nil
}

// Stop cancels the polling loop and waits for the current tick to
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one scheduling pass: recover stuck items, then claim and
// publish everything due.
func (s *Scheduler) tick(ctx context.Context) {
	s.metrics.IncSchedulerTick()

	s.recoverStuck(ctx)

	due, err := s.content.ListDue(ctx, time.Now().UTC(), s.config.BatchSize)
	if err != nil {
		s.logger.Error("failed to list due content",
			slog.String("error", err.Error()))
		return
	}
	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)
	for _, item := range due {
		item := item
		g.Go(func() error {
			s.publishOne(gctx, item)
			return nil
		})
	}
	// Workers swallow their own errors; Wait only joins the group.
	_ = g.Wait()
}

// publishOne claims a single due item and publishes it. Losing the
// claim means another scheduler instance owns the item; that is the
// normal outcome under concurrent deployment, not an error.
func (s *Scheduler) publishOne(ctx context.Context, item *domain.ContentItem) {
	err := s.content.ClaimForPublishing(ctx, item.ID, domain.ContentStatusScheduled)
	if err != nil {
		if store.IsClaimLost(err) {
			s.metrics.IncClaim("publish", "lost")
			return
		}
		s.logger.Error("failed to claim content for publishing",
			slog.String("content_id", item.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	s.metrics.IncClaim("publish", "won")

	if err := s.publisher.Publish(ctx, item); err != nil {
		s.logger.Error("publish pipeline error",
			slog.String("content_id", item.ID.String()),
			slog.String("error", err.Error()))
	}
}

// recoverStuck requeues or fails items stranded in publishing state by
// a dead publisher.
func (s *Scheduler) recoverStuck(ctx context.Context) {
	requeued, failed, err := s.content.RecoverStuckPublishing(
		ctx, s.config.StuckAge, s.config.MaxPublishRetries)
	if err != nil {
		s.logger.Error("stuck publish recovery failed",
			slog.String("error", err.Error()))
		return
	}
	if requeued > 0 || failed > 0 {
		s.logger.Warn("recovered stuck publishing items",
			slog.Int64("requeued", requeued),
			slog.Int64("failed", failed))
	}
}
