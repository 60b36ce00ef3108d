// Package api exposes the bot's status and query surface over HTTP.
//
// Endpoints:
//
//	GET  /health                         liveness probe
//	GET  /ready                          readiness probe (vector store + agents)
//	GET  /api/agents                     registered agents with usage counters
//	GET  /api/stats                      agent and conversation statistics
//	POST /api/query                      one-shot query ({message, user_id, agent_id})
//	POST /api/conversations/{user}/clear drop a user's conversation history
//	GET  /                               minimal HTML status page
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ragbot-io/ragbot/internal/agent"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8501"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to resist Slowloris clients.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout bounds keep-alive connections between requests.
	IdleTimeout = 120 * time.Second
)

// Agents is the registry surface the server reads. Implemented by
// agent.Manager.
type Agents interface {
	List() []agent.Status
	Stats(ctx context.Context) map[string]any
	HealthCheck(ctx context.Context) (overall bool, perAgent map[string]bool)
}

// ChatService answers queries and manages conversations. Implemented by
// ai.Service.
type ChatService interface {
	Response(ctx context.Context, message, userID, agentID string) string
	ClearConversation(userID string) bool
	Stats() map[string]any
}

// ReadinessProbe reports whether the backing stores are reachable.
type ReadinessProbe func(ctx context.Context) bool

// Server is the HTTP server for the status dashboard and query API.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger

	health    *HealthHandler
	dashboard *DashboardHandler
}

// NewServer creates a server with all routes registered. ready may be nil,
// in which case /ready only checks agents.
func NewServer(agents Agents, chat ChatService, ready ReadinessProbe, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:       mux,
		logger:    logger,
		health:    NewHealthHandler(agents, ready, logger),
		dashboard: NewDashboardHandler(agents, chat, logger),
	}
	s.health.RegisterRoutes(mux)
	s.dashboard.RegisterRoutes(mux)
	return s
}

// Handler returns the routes wrapped in middleware.
// Order: recovery → request id → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		s.recoveryMiddleware,
		requestIDMiddleware,
		s.loggingMiddleware,
	)
}

// Run starts the server and blocks until the context is canceled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
