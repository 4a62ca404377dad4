package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/sitehost/internal/api/handler"
	mw "github.com/edvin/sitehost/internal/api/middleware"
)

type Server struct {
	router chi.Router
	logger zerolog.Logger
	svc    handler.SiteService
}

func NewServer(logger zerolog.Logger, svc handler.SiteService) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
		svc:    svc,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		site := handler.NewSite(s.svc)
		r.Get("/stats", site.Stats)

		r.Get("/sites", site.List)
		r.Post("/sites", site.Create)
		r.Get("/sites/{name}", site.Get)
		r.Delete("/sites/{name}", site.Delete)
		r.Post("/sites/{name}/migrate", site.Migrate)
		r.Get("/sites/{name}/health", site.Health)

		// Backups
		r.Get("/sites/{name}/backups", site.ListBackups)
		r.Post("/sites/{name}/backups", site.CreateBackup)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReadyz reports ready once the site registry can be read.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if _, err := s.svc.ListSites(ctx); err != nil {
		checks["registry"] = err.Error()
		healthy = false
	} else {
		checks["registry"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
