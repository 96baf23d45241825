package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/fleet-recurring/internal/category"
	"github.com/frahmantamala/fleet-recurring/internal/recurring"
	"github.com/frahmantamala/fleet-recurring/internal/transport/middleware"
	"github.com/frahmantamala/fleet-recurring/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

// OpenAPIPath is where the served OpenAPI document lives relative to the working directory.
const OpenAPIPath = "./api/openapi.yml"

func RegisterAllRoutes(router chi.Router, db *sql.DB, recurringHandler *recurring.Handler, categoryHandler *category.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, OpenAPIPath)
	})
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if categoryHandler != nil {
			r.Get("/categories", categoryHandler.GetCategories)
		}

		if recurringHandler != nil {
			r.Route("/recurring", func(rr chi.Router) {
				rr.Use(middleware.ScopeContext)
				recurringHandler.Routes(rr)
			})
		}
	})
}
