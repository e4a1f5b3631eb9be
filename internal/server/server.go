// Package server wires handlers, middleware and routes into the HTTP server
// and owns its lifecycle.
//
// ROUTES:
//
//	POST /execute    grade a submission (rate limited, optionally token-gated)
//	GET  /languages  list the language profiles
//	GET  /healthz    report whether the container engine answers
//	GET  /metrics    Prometheus exposition
//
// SHUTDOWN ORDER:
// On SIGINT/SIGTERM the HTTP server stops accepting work and drains in-flight
// requests first. Only then are the container stops still scheduled by the
// guardian awaited, since a draining request may schedule one more.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/gradebox/internal/auth"
	"github.com/sakif/gradebox/internal/executor"
	"github.com/sakif/gradebox/internal/handler"
	"github.com/sakif/gradebox/internal/language"
	"github.com/sakif/gradebox/internal/middleware"
)

// ShutdownTimeout bounds both drain phases of a graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// limiterIdle is how long a client's rate limiter survives without traffic.
const limiterIdle = 10 * time.Minute

// Config holds the listener settings.
type Config struct {
	Addr string
	// WriteTimeout must cover a full request: compile plus every test run.
	WriteTimeout time.Duration
}

// Drainer waits for background work to finish. The guardian implements it.
type Drainer interface {
	Shutdown(ctx context.Context) error
}

// Deps are the components the routes are built from.
type Deps struct {
	Executor executor.Executor
	Registry *language.Registry
	Engine   handler.Pinger
	Limiter  *middleware.RateLimiter
	// Tokens gates /execute when non-nil.
	Tokens *auth.TokenService
	// Drainer is awaited after the HTTP server has stopped. May be nil.
	Drainer Drainer
}

// Server is the HTTP front of the grader.
type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	executeHandler := handler.NewExecuteHandler(s.deps.Executor, s.logger)
	languageHandler := handler.NewLanguageHandler(s.deps.Registry)
	healthHandler := handler.NewHealthHandler(s.deps.Engine, s.logger)

	s.router.Group(func(r chi.Router) {
		if s.deps.Tokens != nil {
			r.Use(middleware.RequireBearer(s.deps.Tokens, s.logger))
		}
		if s.deps.Limiter != nil {
			r.Use(s.deps.Limiter.Middleware)
		}
		r.Post("/execute", executeHandler.HandleExecute)
	})

	s.router.Get("/languages", languageHandler.HandleList)
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	if s.deps.Limiter != nil {
		go s.pruneLimiter(ctx)
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", s.config.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	if s.deps.Drainer != nil {
		if err := s.deps.Drainer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("draining container stops: %w", err)
		}
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

func (s *Server) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterIdle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.deps.Limiter.Prune(limiterIdle)
		}
	}
}
