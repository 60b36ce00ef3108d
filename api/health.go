package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// readinessTimeout bounds the store and agent probes for one /ready call.
const readinessTimeout = 5 * time.Second

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	agents Agents
	ready  ReadinessProbe
	logger *slog.Logger
}

// NewHealthHandler creates the handler. ready may be nil.
func NewHealthHandler(agents Agents, ready ReadinessProbe, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{agents: agents, ready: ready, logger: logger}
}

// RegisterRoutes registers the probe endpoints on mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /ready", h.handleReady)
}

// handleHealth is the liveness probe. It answers as long as the process
// serves requests.
func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady is the readiness probe. It checks the vector store probe and
// every agent's health; any failure yields 503 with per-check detail.
func (h *HealthHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]any)
	healthy := true

	if h.ready != nil {
		storeOK := h.ready(ctx)
		checks["store"] = storeOK
		if !storeOK {
			healthy = false
		}
	}

	if h.agents != nil {
		agentsOK, perAgent := h.agents.HealthCheck(ctx)
		checks["agents"] = perAgent
		if !agentsOK {
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		h.logger.Warn("readiness check failed", "checks", checks)
	}
	writeJSON(w, status, map[string]any{
		"ready":  healthy,
		"checks": checks,
	})
}
