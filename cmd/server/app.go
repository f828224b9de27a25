package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dhofer/postflow-api/internal/api"
	"github.com/dhofer/postflow-api/internal/auth"
	"github.com/dhofer/postflow-api/internal/config"
	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/metrics"
	"github.com/dhofer/postflow-api/internal/platform/gemini"
	"github.com/dhofer/postflow-api/internal/platform/postgres"
	"github.com/dhofer/postflow-api/internal/platform/unipile"
	"github.com/dhofer/postflow-api/internal/ratelimit"
	"github.com/dhofer/postflow-api/internal/scheduler"
	"github.com/dhofer/postflow-api/internal/service"
	"github.com/dhofer/postflow-api/internal/task"
)

// application holds the wired object graph: the long-running components
// main starts and stops, plus the assembled HTTP router.
type application struct {
	router    http.Handler
	runner    *task.Runner
	scheduler *scheduler.Scheduler
}

func newApplication(cfg *config.Config, log *slog.Logger, db *sql.DB) (*application, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	contentStore := postgres.NewPostgresContentStore(db, log)
	taskStore := postgres.NewPostgresTaskStore(db, log)
	counterStore := postgres.NewPostgresEngagementCounterStore(db, log)

	generator, err := gemini.NewGeminiGenerator(context.Background(), log, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create draft generator: %w", err)
	}
	social := unipile.NewClient(cfg.Social, log)

	dailyLimiter := ratelimit.NewDailyLimiter(counterStore, cfg.Engagement.DailyCommentLimit, m)

	handlers := task.NewRegistry()
	handlers.Register(domain.TaskTypeGenerate, task.NewGenerateHandler(generator, contentStore, log))
	handlers.Register(domain.TaskTypeEngage, task.NewEngageHandler(social, generator, dailyLimiter, log))
	handlers.Register(domain.TaskTypeResearch, task.NewResearchHandler(social, generator, log))

	runner := task.NewRunner(taskStore, handlers, task.RunnerConfig{
		WorkerCount:        cfg.Task.WorkerCount,
		QueueSize:          cfg.Task.QueueSize,
		StallAge:           cfg.Task.StallAge,
		StallCheckInterval: cfg.Task.StallCheckInterval,
		MaxStallRetries:    cfg.Task.MaxStallRetries,
		HeartbeatInterval:  cfg.Task.HeartbeatInterval,
		Retention:          cfg.Task.Retention,
		GCInterval:         cfg.Task.GCInterval,
	}, log, m)

	publisher := scheduler.NewPublisher(contentStore, social, log, m)
	sched := scheduler.New(contentStore, publisher, scheduler.Config{
		Interval:          cfg.Scheduler.Interval,
		BatchSize:         cfg.Scheduler.BatchSize,
		StuckAge:          cfg.Scheduler.PublishingGrace,
		MaxPublishRetries: cfg.Scheduler.MaxPublishRetries,
	}, log, m)

	contentService := service.NewContentService(
		contentStore, publisher, cfg.Content.MinScheduleLead, log, m)
	taskService := service.NewTaskService(taskStore, runner, log)
	engagementService := service.NewEngagementService(social, dailyLimiter, log)

	verifier, err := auth.NewJWTVerifier(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}

	// Hourly cap expressed as a refill rate with the full hour's burst.
	perUser := ratelimit.NewPerUserLimiter(
		float64(cfg.Server.GenerateRatePerHour)/3600.0,
		cfg.Server.GenerateRatePerHour)

	router := newRouter(routerDeps{
		verifier:   verifier,
		perUser:    perUser,
		registry:   registry,
		logger:     log,
		content:    api.NewContentHandler(contentService),
		tasks:      api.NewTaskHandler(taskService),
		engagement: api.NewEngagementHandler(engagementService),
	})

	return &application{
		router:    router,
		runner:    runner,
		scheduler: sched,
	}, nil
}
