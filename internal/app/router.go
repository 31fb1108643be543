package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rosterkit/rosterkit/internal/apperrors"
	"github.com/rosterkit/rosterkit/internal/audit"
	"github.com/rosterkit/rosterkit/internal/auth"
	"github.com/rosterkit/rosterkit/internal/config"
	"github.com/rosterkit/rosterkit/internal/invitations"
)

// NewRouter creates and configures the Chi router with all middleware and
// routes.
func NewRouter(pool *pgxpool.Pool, svc *invitations.Service, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auditor := audit.NewWriter(pool)

	// Health check routes (no authentication required)
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// API routes - invitations (require portal authentication)
	r.Route("/api/v1/invitations", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Token validation is public: the token is the credential.
		r.With(ValidateRateLimitMiddleware(cfg.RateLimitRPM)).
			Get("/validate/{token}", invitations.HandleValidate(svc))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(cfg.JWTSecret))

			r.Post("/", invitations.HandleCreate(svc, auditor, cfg.BaseURL))
			r.Get("/", invitations.HandleList(svc))
			r.Get("/{invitation_id}", invitations.HandleGet(svc))
			r.Patch("/{invitation_id}", invitations.HandleUpdateMessage(svc))
			r.Post("/{invitation_id}/send", invitations.HandleSend(svc, auditor))
			r.Put("/{invitation_id}/respond", invitations.HandleRespond(svc, auditor))
			r.Delete("/{invitation_id}", invitations.HandleDelete(svc, auditor))
		})
	})

	// Internal routes - onboarding pipeline (shared internal key)
	r.Route("/internal/v1/invitations", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireInternalKey(cfg.InternalAPIKey))

		r.Post("/{invitation_id}/complete", invitations.HandleComplete(svc, auditor))
	})

	return r
}

// handleHealthz returns a simple liveness check.
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check that includes database
// connectivity.
func handleReadyz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
