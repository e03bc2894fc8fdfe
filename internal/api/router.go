package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minara-ai/minara/internal/database"
	mw "github.com/minara-ai/minara/internal/middleware"
	inats "github.com/minara-ai/minara/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth handlers
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	// Usage handlers
	GetMyUsage     http.HandlerFunc
	GetUsageStatus http.HandlerFunc

	// Chat (the billable action)
	ChatCompletion http.HandlerFunc

	// Quota request workflow
	CreateQuotaRequest http.HandlerFunc

	// Organization handlers (org head only, enforced inside the handlers)
	GetOrganization     http.HandlerFunc
	ListQuotaRequests   http.HandlerFunc
	ResolveQuotaRequest http.HandlerFunc
	SetMemberQuota      http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — checks DB and NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public) — optionally rate-limited
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			// Protected auth routes
			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			// Usage visibility + member quota-increase requests
			r.Route("/usage", func(r chi.Router) {
				r.Get("/me", h.GetMyUsage)
				r.Get("/status", h.GetUsageStatus)
				r.Post("/quota-requests", h.CreateQuotaRequest)
			})

			// The billable action
			r.Post("/chat/completions", h.ChatCompletion)

			// Organization management (org heads)
			r.Route("/orgs", func(r chi.Router) {
				r.Get("/me", h.GetOrganization)
				r.Get("/quota-requests", h.ListQuotaRequests)
				r.Patch("/quota-requests/{requestID}", h.ResolveQuotaRequest)
				r.Put("/members/{userID}/quota", h.SetMemberQuota)
			})
		})
	})

	return r
}
