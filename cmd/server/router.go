package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dhofer/postflow-api/internal/api"
	"github.com/dhofer/postflow-api/internal/auth"
	postmw "github.com/dhofer/postflow-api/internal/middleware"
	"github.com/dhofer/postflow-api/internal/ratelimit"
)

type routerDeps struct {
	verifier   auth.TokenVerifier
	perUser    *ratelimit.PerUserLimiter
	registry   *prometheus.Registry
	logger     *slog.Logger
	content    *api.ContentHandler
	tasks      *api.TaskHandler
	engagement *api.EngagementHandler
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(postmw.RequestLogger(deps.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(postmw.Auth(deps.verifier))

		r.Route("/tasks", func(r chi.Router) {
			r.With(postmw.PerUserRateLimit(deps.perUser)).Post("/", deps.tasks.Submit)
			r.Get("/", deps.tasks.List)
			r.Get("/notifications", deps.tasks.Notifications)
			r.Get("/{id}", deps.tasks.Get)
		})

		r.Route("/content", func(r chi.Router) {
			r.Post("/", deps.content.Create)
			r.Get("/", deps.content.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", deps.content.Get)
				r.Patch("/", deps.content.Update)
				r.Delete("/", deps.content.Delete)
				r.Post("/schedule", deps.content.Schedule)
				r.Post("/unschedule", deps.content.Unschedule)
				r.Post("/publish", deps.content.Publish)
			})
		})

		r.Route("/engagement", func(r chi.Router) {
			r.Get("/remaining", deps.engagement.Budget)
			r.Post("/approve", deps.engagement.Approve)
		})
	})

	return r
}
