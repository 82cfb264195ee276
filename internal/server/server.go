// Package server exposes the administrative control surface: run listing,
// run status, cancellation, and health. It maps 1:1 onto the registry
// operations and holds no pipeline logic of its own.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rowanlight/dramatis/internal/runs"
	"github.com/rowanlight/dramatis/internal/svcctx"
)

// Server is the admin HTTP server.
type Server struct {
	httpServer *http.Server
	registry   RunRegistry
	services   *svcctx.Services
	logger     *slog.Logger
}

// RunRegistry is the registry surface the handlers consume.
// *runs.Registry satisfies it.
type RunRegistry interface {
	List() []runs.Info
	Status(runID string) (runs.Info, error)
	Cancel(runID string) bool
	CancelAll() int
	LiveCount() int
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Registry provides run lifecycle operations.
	Registry RunRegistry
	// Services flow into every request context. Optional; handlers that
	// need an absent service answer 503.
	Services *svcctx.Services
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// New creates a new Server.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("server: registry is required")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		registry: cfg.Registry,
		services: cfg.Services,
		logger:   cfg.Logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Handler returns the route handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start serves until the context is cancelled, then drains in-flight HTTP
// requests. Run shutdown (cancelAll plus grace period) belongs to the
// caller, which owns the registry.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
