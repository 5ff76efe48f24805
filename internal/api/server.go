package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/camps/pkg/config"
	"github.com/wonny/camps/pkg/logger"
)

// Server represents an HTTP server (API or metrics)
// ⭐ SSOT: API 서버 설정은 이 파일에서만
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	name       string
	port       string
	env        string
}

// New creates a new API server.
// Write timeout covers a synchronous recalculation of a realistic directory.
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return newServer("api", cfg.Port, cfg.Env, 5*time.Minute, log, router)
}

// NewMetrics creates the Prometheus scrape server
func NewMetrics(cfg *config.Config, log *logger.Logger, handler http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return newServer("metrics", cfg.MetricsPort, cfg.Env, 15*time.Second, log, mux)
}

func newServer(name, port, env string, writeTimeout time.Duration, log *logger.Logger, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
		logger: log.Module("api." + name),
		name:   name,
		port:   port,
		env:    env,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"port": s.port,
		"env":  s.env,
	}).Info("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start %s server: %w", s.name, err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown %s server: %w", s.name, err)
	}

	return nil
}
