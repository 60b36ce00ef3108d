// Package agent defines the chat agent contract and a registry that routes
// user messages to registered agents.
package agent

import (
	"context"
	"time"
)

// Agent is a pluggable message handler. Implementations answer free-text
// questions, typically backed by a retrieval pipeline.
type Agent interface {
	// Initialize prepares the agent for use. The manager calls it lazily on
	// first dispatch; implementations must be idempotent.
	Initialize(ctx context.Context) error

	// Invoke answers a single message.
	Invoke(ctx context.Context, message string) (string, error)

	// Info describes the agent for listings and dashboards.
	Info() Info
}

// Info is an agent's static self-description.
type Info struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

// Optional capabilities. The manager probes for these once, at registration.

// HealthChecker reports whether the agent's backing services are reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// StatsProvider exposes runtime statistics beyond the manager's counters.
type StatsProvider interface {
	Stats(ctx context.Context) map[string]any
}

// Closer releases agent-held resources on shutdown.
type Closer interface {
	Close() error
}

// Status is a snapshot of one registered agent, as reported by List.
type Status struct {
	ID         string    `json:"id"`
	Info       Info      `json:"info"`
	IsDefault  bool      `json:"is_default"`
	UsageCount int64     `json:"usage_count"`
	ErrorCount int64     `json:"error_count"`
	LastUsed   time.Time `json:"last_used"`
}
