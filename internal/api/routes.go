package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RegisterRoutes builds the router. allowedOrigins feeds CORS.
func RegisterRoutes(h *Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(h.logger))
	r.Use(RecoveryMiddleware(h.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	// Check page
	r.Get("/", h.CheckPage)
	r.Get("/check", h.CheckPage)

	// Verification API
	r.Get("/api/subscription/verify-by-email", h.VerifyByEmail)

	// Observability APIs
	r.Get("/metrics", h.GetMetrics)
	r.Get("/health", h.GetHealth)

	// Admin APIs
	r.Route("/admin", func(r chi.Router) {
		r.Get("/cache", h.GetCacheStats)
		r.Get("/logs", h.GetLogs)
	})

	return r
}
