package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/dataset-search-api/app"
	"github.com/upb/dataset-search-api/middleware"
	"github.com/upb/dataset-search-api/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	if cfg.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	datasets := deps.DatasetHandler
	readGroup := deps.Gate.RequireGroup(cfg.Auth.ReadGroup)
	writeGroup := deps.Gate.RequireGroup(cfg.Auth.WriteGroup)

	// Dataset catalogue
	r.Route("/search", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)

		r.Group(func(r chi.Router) {
			r.Use(readGroup)
			r.Get("/datasets/{id}", datasets.HandleGet)
			r.Get("/search/{query}", datasets.HandleSearch)
		})

		// Ownership of existing datasets is checked by the service
		r.Group(func(r chi.Router) {
			r.Use(writeGroup)
			r.Post("/create", datasets.HandleCreate)
			r.Put("/update/{id}", datasets.HandleUpdate)
			r.Delete("/delete/{id}", datasets.HandleDelete)
		})
	})

	// Aggregations
	r.Route("/agg", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Use(readGroup)
		r.Get("/getDistinctValues/{field}", datasets.HandleDistinct)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
