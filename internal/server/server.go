// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and routes.
// It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// cmd/collab builds the long-lived pieces (relay hub, orchestrator, SQLite
// store, run service) and hands them over in Deps. New only turns them into
// handlers and routes, so tests can build a Server around fakes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/collab-playground/internal/executor"
	"github.com/sakif/collab-playground/internal/handler"
	"github.com/sakif/collab-playground/internal/metrics"
	"github.com/sakif/collab-playground/internal/middleware"
	"github.com/sakif/collab-playground/internal/relay"
)

// Config holds server configuration.
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Deps are the components the routes are served from.
type Deps struct {
	Hub       *relay.Hub
	Runs      handler.Runner
	History   handler.RunHistory
	Languages *executor.Registry
	// Sandbox is nil when no execution backend could be started.
	Sandbox handler.Sandbox
	Metrics *metrics.Metrics
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
}

// New creates a new Server with the given config and dependencies.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	s.setupRoutes(deps)
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /ws                    → WebSocket relay (session events)
// POST   /api/execute           → Run code in the sandbox (JSON)
// GET    /api/languages         → Supported languages (JSON)
// POST   /api/sessions          → Issue a new session id (JSON)
// GET    /api/sessions/{id}     → Live session state (JSON)
// GET    /api/runs              → Execution history (JSON)
// GET    /api/runs/{id}         → One recorded run (JSON)
// GET    /healthz               → Health probe
// GET    /metrics               → Prometheus exposition
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger: logs each request with timing info
func (s *Server) setupRoutes(deps Deps) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	executeHandler := handler.NewExecuteHandler(deps.Runs, deps.Languages, s.logger)
	sessionHandler := handler.NewSessionHandler(deps.Hub, s.logger)
	runHandler := handler.NewRunHandler(deps.History, s.logger)
	healthHandler := handler.NewHealthHandler(deps.Sandbox, deps.Hub, s.logger)

	s.router.Get("/ws", deps.Hub.ServeWS)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/execute", executeHandler.HandleExecute)
		r.Get("/languages", executeHandler.HandleLanguages)

		r.Post("/sessions", sessionHandler.HandleCreate)
		r.Get("/sessions/{id}", sessionHandler.HandleGet)

		r.Get("/runs", runHandler.HandleList)
		r.Get("/runs/{id}", runHandler.HandleGetByID)
	})

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", deps.Metrics.Handler())
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests (including running executions) to finish
// 3. Give up after ShutdownTimeout
//
// WebSocket connections are hijacked, so Shutdown does not wait for them;
// the relay hub closes them when its own context ends.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
