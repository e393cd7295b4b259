/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in the access log
  2. RealIP:     Client address behind a proxy
  3. AccessLog:  zap request log and Prometheus HTTP metrics
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /healthz              Liveness and database ping
  /metrics              Prometheus scrape endpoint
  /api/enrollments/*    Learner enrollment and progress (bearer token)
  /api/points/*         Balance and history (bearer token)
  /api/courses/*        Instructor course authoring (bearer token)
  /api/admin/*          Admin bonus grants (bearer token)
  /api/scenarios/*      Demo scenarios (only when enabled, no token)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification and role checks
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/course-ledger/ledger"
)

// RouterConfig carries the optional parts of the router.
type RouterConfig struct {
	AllowedOrigins  []string
	EnableScenarios bool

	// Metrics and Gatherer back /metrics. Both nil disables the endpoint.
	Metrics  *HTTPMetrics
	Gatherer prometheus.Gatherer

	// Ping is called by /healthz. Nil reports healthy.
	Ping func(ctx context.Context) error
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(h.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ping(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.Middleware)

			// Enrollment routes
			r.Route("/enrollments", func(r chi.Router) {
				r.Use(RequireRole(ledger.RoleLearner))
				r.Post("/", h.Enroll)
				r.Get("/", h.ListEnrollments)
				r.Get("/course/{courseID}", h.GetCourseProgress)
				r.Put("/lesson/{lessonID}/complete", h.CompleteLesson)
				r.Put("/lesson/{lessonID}/progress", h.UpdateLessonProgress)
			})

			// Points routes
			r.Route("/points", func(r chi.Router) {
				r.Get("/", h.GetPoints)
				r.Get("/transactions", h.GetTransactions)
			})

			// Instructor routes
			r.Route("/courses", func(r chi.Router) {
				r.Use(RequireRole(ledger.RoleInstructor, ledger.RoleAdmin))
				r.Post("/", h.CreateCourse)
				r.Post("/{courseID}/lessons", h.AddLesson)
				r.Put("/{courseID}/publish", h.PublishCourse)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(ledger.RoleAdmin))
				r.Post("/users/{userID}/bonus", h.GrantBonus)
			})
		})

		// Scenario routes
		if cfg.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}
