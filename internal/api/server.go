package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"oidworker/internal/api/control"
	"oidworker/internal/api/health"
	"oidworker/internal/metrics"
	"oidworker/pkg/errors"
	"oidworker/pkg/logger"
)

// ServerConfig contains configuration for HTTP server
type ServerConfig struct {
	Port   int
	Secret string
	// WriteTimeout must outlast a synchronous run-now of both jobs
	WriteTimeout time.Duration
}

// Server wraps HTTP server with lifecycle management
type Server struct {
	router     chi.Router
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates and configures HTTP server with all routes
func NewServer(cfg ServerConfig, healthHandler *health.Handler, controlHandler *control.Handler, log *logger.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    log,
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	notFound := func(w http.ResponseWriter, r *http.Request) {
		health.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
	s.router.NotFound(notFound)
	s.router.MethodNotAllowed(notFound)

	s.router.Get("/health", healthHandler.HandleHealth)
	s.router.Get("/ready", healthHandler.HandleReadiness)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(control.RequireSecret(cfg.Secret))
		r.Get("/health/details", healthHandler.HandleDetails)
		r.Post("/run-now", controlHandler.HandleRunNow)
	})

	port := 4100
	if cfg.Port > 0 {
		port = cfg.Port
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Minute
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	log.Infof("HTTP server configured on port %d", port)
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests
// Blocks until server is stopped or encounters an error
func (s *Server) Start() error {
	s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
// Waits for active connections to complete within timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}

	s.log.Info("✓ HTTP server stopped")
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		} else if ww.Status() == http.StatusNotFound {
			route = "unmatched"
		}
		metrics.ControlRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()

		if route == "/health" || route == "/metrics" {
			return
		}
		s.log.Debugw("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
