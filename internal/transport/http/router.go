package http

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"invodesk/internal/infrastructure"
	"invodesk/internal/middleware"
	"invodesk/internal/services"
	"invodesk/internal/timesource"
)

// RouterConfig carries everything the router mounts
type RouterConfig struct {
	SessionService services.SessionService
	LicenseService services.LicenseService
	Guard          *middleware.SessionGuard
	Oracle         *timesource.Oracle
	Metrics        *infrastructure.MetricsProvider
	Logger         *slog.Logger
	Version        string
}

// NewRouter builds the chi router with the full middleware chain. The
// session guard self-excludes the sign-in, license, health and metrics
// routes, so it wraps everything.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredLogger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(render.SetContentType(render.ContentTypeJSON))
	if cfg.Guard != nil {
		r.Use(cfg.Guard.Handler)
	}

	sessionHandler := NewSessionHandler(cfg.SessionService, cfg.Logger)
	licenseHandler := NewLicenseHandler(cfg.LicenseService, cfg.Logger)
	healthHandler := NewHealthHandler(cfg.Version, cfg.Oracle)

	r.Route("/api", func(r chi.Router) {
		r.Mount("/session", sessionHandler.Routes())
		r.Mount("/license", licenseHandler.Routes())
		r.Get("/health", healthHandler.HealthCheck)
	})

	if cfg.Metrics != nil {
		metricsHandler := NewMetricsHandler(cfg.Metrics)
		r.Get("/metrics", metricsHandler.Metrics)
	}

	return r
}
