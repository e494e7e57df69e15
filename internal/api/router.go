package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Unversioned paths used by existing dashboards and upload scripts.
	s.routes(r)

	r.Route("/api/v1", s.routes)

	if s.metrics.Enabled {
		path := s.metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, s.metricsHandler())
	}

	return r
}

// routes registers the API on r.
func (s *Server) routes(r chi.Router) {
	r.Get("/health", s.handleHealth)

	// Ingestion
	r.Post("/data/ingest", s.handleIngest)
	r.Post("/upload_csv", s.handleIngest)
	r.Get("/ingests", s.handleListIngests)

	// Reads. The category is the rest of the path so labels containing
	// slashes still resolve.
	r.Get("/data/*", s.handleSeries)
	r.Get("/devices", s.handleDevices)
	r.Get("/dispositivos", s.handleDevices)
	r.Get("/categories", s.handleCategories)
	r.Get("/categorias", s.handleCategories)
	r.Get("/categorias-por-device", s.handleCategories)
}

// metricsHandler serves the Prometheus exposition format.
func (s *Server) metricsHandler() http.Handler {
	if s.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}
