// Package server wires the st2auth HTTP API: router, middleware, and
// lifecycle.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pimguilherme/st2/internal/handler"
	"github.com/pimguilherme/st2/internal/server/middleware"
	"github.com/pimguilherme/st2/internal/service"
	"github.com/pimguilherme/st2/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host              string
	Port              int
	ShutdownTimeout   time.Duration
	CORSOrigins       []string
	TokenHeader       string
	APIKeyHeader      string
	RequestsPerMinute int
	Version           string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              9100,
		ShutdownTimeout:   30 * time.Second,
		CORSOrigins:       []string{"*"},
		TokenHeader:       "X-Auth-Token",
		APIKeyHeader:      "St2-Api-Key",
		RequestsPerMinute: 600,
		Version:           "dev",
	}
}

// Server is the top-level HTTP server for st2auth. It owns the chi router,
// the system store, and the auth service.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *store.Store
	authSvc    *service.AuthService
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, st *store.Store, authSvc *service.AuthService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		authSvc: authSvc,
		logger:  logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", s.cfg.TokenHeader, s.cfg.APIKeyHeader, "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.cfg.RequestsPerMinute > 0 {
		r.Use(middleware.RateLimit(s.cfg.RequestsPerMinute))
		r.Use(middleware.RateLimitByHeader(s.cfg.APIKeyHeader, s.cfg.RequestsPerMinute))
	}
	r.Use(chimw.Compress(5))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec (no auth required) ---
	baseURL := fmt.Sprintf("http://%s:%d", s.cfg.Host, s.cfg.Port)
	r.Get("/openapi.json", handler.NewOpenAPIHandler(baseURL, s.cfg.Version).ServeSpec)

	tokenHandler := handler.NewTokenHandler(s.authSvc, s.cfg.TokenHeader)
	userHandler := handler.NewUserHandler(s.authSvc, s.store)
	apiKeyHandler := handler.NewAPIKeyHandler(s.authSvc)
	ssoHandler := handler.NewSSOHandler(s.authSvc)

	authenticate := middleware.Authenticate(s.authSvc, s.cfg.TokenHeader, s.cfg.APIKeyHeader)

	r.Route("/api/v1", func(r chi.Router) {

		// Token issuance and validation carry their own credentials; SSO
		// initiation happens before any credential exists.
		r.Post("/tokens", tokenHandler.Issue)
		r.Get("/tokens/validate", tokenHandler.Validate)
		r.Post("/sso/requests", ssoHandler.Initiate)
		r.Post("/sso/requests/{id}/complete", ssoHandler.Complete)

		// Everything else requires an authenticated principal.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Get("/tokens", tokenHandler.List)
			r.Delete("/tokens/{token}", tokenHandler.Revoke)
			r.Post("/tokens/purge", tokenHandler.Purge)

			r.Get("/users", userHandler.List)
			r.Post("/users", userHandler.Create)
			r.Get("/users/{name}", userHandler.Get)
			r.Put("/users/{name}", userHandler.Update)
			r.Delete("/users/{name}", userHandler.Delete)
			r.Get("/users/{name}/roles", userHandler.Roles)

			r.Get("/apikeys", apiKeyHandler.List)
			r.Post("/apikeys", apiKeyHandler.Create)
			r.Put("/apikeys/{id}", apiKeyHandler.SetEnabled)
			r.Delete("/apikeys/{id}", apiKeyHandler.Delete)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the system store is
// reachable, or 503 when it is not.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if err := s.store.Ping(r.Context()); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing store", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
