package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-claims/kestrel/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, handler *Handler) *Server {
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Operational endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", MetricsHandler())

	// Claim filing and inspection
	router.Post("/claims", handler.CreateClaim)
	router.Get("/claims/{id}", handler.GetClaim)
	router.Get("/claims/{id}/flags", handler.ListFlags)
	router.Get("/claims/{id}/risk", handler.GetRisk)
	router.Post("/claims/{id}/documents", handler.AddDocument)
	router.Get("/claims/{id}/documents", handler.ListDocuments)
	router.Get("/users/{id}/claims", handler.ListUserClaims)
	router.Get("/users/{id}/notifications", handler.ListNotifications)

	// Admin routes (X-Admin-ID required)
	router.Group(func(r chi.Router) {
		r.Use(AdminMiddleware)

		r.Post("/claims/{id}/evaluate", handler.EvaluateClaim)
		r.Post("/claims/{id}/reconcile", handler.ReconcileClaim)
		r.Post("/claims/{id}/approve", handler.ApproveClaim)
		r.Post("/claims/{id}/reject", handler.RejectClaim)
		r.Post("/claims/{id}/complete", handler.CompleteClaim)
		r.Get("/claims/{id}/audit", handler.GetAuditTrail)
		r.Post("/documents/{id}/review", handler.ReviewDocument)

		// Policy catalog seeding
		r.Post("/policies", handler.CreatePolicy)
		r.Get("/policies/{id}", handler.GetPolicy)
		r.Post("/user-policies", handler.CreateUserPolicy)

		// Custom rule management
		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

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

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
