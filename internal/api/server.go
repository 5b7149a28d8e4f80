// Package api serves the screening, browse and admin endpoints over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. rateLimit caps POST /api/check_fraud
// per caller IP per minute; zero disables the cap.
func NewServer(cfg domain.ServerConfig, deps Deps, rateLimit int) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(middleware.RealIP)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	// Ingest
	router.With(RateLimitMiddleware(deps.Cache, rateLimit)).
		Post("/api/check_fraud", handler.CheckFraud)

	// Browse
	router.Get("/flagged", handler.ListFlagged)
	router.Get("/transactions", handler.ListTransactions)

	// Admin
	router.Route("/blocked", func(r chi.Router) {
		r.Get("/", handler.ListBlocked)
		r.Post("/", handler.CreateBlocked)
		r.Get("/{upi_id}", handler.GetBlocked)
	})
	router.Post("/sweeps", handler.RunSweep)
	router.Post("/model/retrain", handler.RequestRetrain)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
