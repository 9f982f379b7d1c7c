// Package api provides the HTTP API for bahnmcp.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/bahnmcp/bahnmcp/internal/api/handler"
	"github.com/bahnmcp/bahnmcp/internal/api/middleware"
	"github.com/bahnmcp/bahnmcp/internal/api/response"
	"github.com/bahnmcp/bahnmcp/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version        string
	BuildTime      string
	Logger         zerolog.Logger
	Metrics        *middleware.Metrics
	Service        handler.DepartureService
	Registry       *resilience.Registry
	Cache          handler.CacheStatter
	Prewarm        handler.PrewarmStatter
	AllowedOrigins []string
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(response.NotFound)
	r.MethodNotAllowed(response.MethodNotAllowed)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Cache:     cfg.Cache,
		Prewarm:   cfg.Prewarm,
	})
	toolsHandler := handler.NewToolsHandler(cfg.Service, cfg.Logger)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/tools", func(r chi.Router) {
			r.Use(middleware.RequireJSON)
			r.Post("/get_departures", toolsHandler.GetDepartures)
			r.Post("/get_journey", toolsHandler.GetJourney)
		})

		r.Get("/stations/nearby", toolsHandler.NearbyStations)
	})

	return r
}
