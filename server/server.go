package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/chloebot/chloe/config"
	"github.com/chloebot/chloe/errors"
	"github.com/chloebot/chloe/server/metrics"
	"github.com/chloebot/chloe/server/middleware"
)

// Router handles HTTP routing
type Router struct {
	router chi.Router
	events http.Handler
}

// NewRouter mounts the webhook endpoint, health check and metrics endpoint
// behind the middleware stack. events handles webhook deliveries; eventsPath
// is where the platform is configured to send them.
func NewRouter(events http.Handler, eventsPath string, m *metrics.Metrics, logger *zap.Logger) *Router {
	r := chi.NewRouter()

	// Add our middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTimer)
	r.Use(middleware.PanicRecovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.PrometheusMetrics(m))

	router := &Router{
		router: r,
		events: events,
	}

	// The per-client limiter guards only the webhook endpoint. Health and
	// metrics probes must never be throttled.
	r.With(middleware.RateLimit(m)).Post(eventsPath, events.ServeHTTP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
		})
	})
	r.Get("/metrics", m.Handler().ServeHTTP)

	return router
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
}

// NewServer creates a new server instance
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:           fmt.Sprintf(":%d", cfg.Port),
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Start starts the server and blocks until ctx is cancelled or the listener
// fails. In-flight webhook pipelines get cfg.ShutdownTimeout to post their
// replies before the listener is torn down.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		errors.DefaultLogger.Info("Server started", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		errors.DefaultLogger.Info("Shutting down server")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error during server shutdown: %w", err)
		}
		return nil

	case err := <-errChan:
		return err
	}
}
