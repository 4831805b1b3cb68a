package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pratik-mahalle/costwatch/internal/api/handlers"
	"github.com/pratik-mahalle/costwatch/internal/api/middleware"
	"github.com/pratik-mahalle/costwatch/internal/config"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/costwatch/internal/pkg/metrics"
)

type Handlers struct {
	Health         *handlers.HealthHandler
	Alert          *handlers.AlertHandler
	Recommendation *handlers.RecommendationHandler
	Run            *handlers.RunHandler
}

// New builds the operator API. The returned stop function releases the
// rate limiter's background cleanup.
func New(cfg *config.Config, log *logger.Logger, h *Handlers) (http.Handler, func()) {
	r := chi.NewRouter()

	rateLimit, stop := middleware.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(chimiddleware.CleanPath)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(metrics.Middleware)

	// Probes and scraping
	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit)
		r.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Required))

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.Alert.List)
			r.Get("/metrics", h.Alert.Metrics)
			r.Get("/{id}", h.Alert.Get)
			r.Post("/{id}/acknowledge", h.Alert.Acknowledge)
			r.Post("/{id}/resolve", h.Alert.Resolve)
			r.Post("/{id}/escalate", h.Alert.Escalate)
		})

		r.Route("/recommendations", func(r chi.Router) {
			r.Get("/", h.Recommendation.List)
			r.Get("/savings", h.Recommendation.Savings)
			r.Get("/{id}", h.Recommendation.Get)
			r.Put("/{id}/status", h.Recommendation.UpdateStatus)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.Run.ListExecutions)
			r.Post("/", h.Run.Trigger)
		})
		r.Get("/schedules", h.Run.Schedules)
	})

	return r, stop
}
