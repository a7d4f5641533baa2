// Package api exposes the client operations over HTTP for callers that
// cannot reach the database directly. The server is a thin shell: every
// /api/v1 endpoint maps onto one queue.Client call.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maumercado/dbqueue/internal/config"
	"github.com/maumercado/dbqueue/internal/queue"
)

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	client *queue.Client
	config *config.Config
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, client *queue.Client) *Server {
	s := &Server{
		router: chi.NewRouter(),
		client: client,
		config: cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger())
	s.router.Use(middleware.Recoverer)

	// Heartbeat endpoint for load balancers
	s.router.Use(middleware.Heartbeat("/healthz"))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.submitTask)
			r.Get("/", s.listTasks)
			r.Get("/{taskID}", s.getTask)
			r.Get("/{taskID}/result", s.getTaskResult)
		})

		r.Route("/workers", func(r chi.Router) {
			r.Get("/", s.listWorkers)
			r.Delete("/", s.killWorkers)
		})
	})

	// Metrics endpoint
	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
