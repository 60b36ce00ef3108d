package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrAlreadyRegistered is returned when an agent id is registered twice.
var ErrAlreadyRegistered = errors.New("agent already registered")

// registration pairs an agent with its per-agent dispatch state. Capability
// interfaces are resolved once here so dispatch never type-asserts.
type registration struct {
	agent       Agent
	health      HealthChecker // nil when not implemented
	stats       StatsProvider // nil when not implemented
	closer      Closer        // nil when not implemented
	initialized bool
	usageCount  int64
	errorCount  int64
	lastUsed    time.Time
}

// Manager is a locked agent registry. Query never returns an error: every
// failure becomes a user-facing string, so one broken agent cannot take down
// the chat surface.
type Manager struct {
	mu           sync.Mutex
	agents       map[string]*registration
	defaultID    string
	totalQueries int64
	logger       *slog.Logger
}

// NewManager creates an empty registry.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		agents: make(map[string]*registration),
		logger: logger,
	}
}

// Register adds an agent under id with zeroed counters. The first registered
// agent becomes the default; asDefault promotes later ones. Optional
// capabilities are probed here, once.
func (m *Manager) Register(id string, a Agent, asDefault bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	reg := &registration{agent: a}
	if h, ok := a.(HealthChecker); ok {
		reg.health = h
	}
	if s, ok := a.(StatsProvider); ok {
		reg.stats = s
	}
	if c, ok := a.(Closer); ok {
		reg.closer = c
	}
	m.agents[id] = reg

	if asDefault || m.defaultID == "" {
		m.defaultID = id
	}

	m.logger.Info("registered agent",
		"agent_id", id,
		"name", a.Info().Name,
		"default", m.defaultID == id)
	return nil
}

// Query routes a message to an agent and returns its answer as a string.
// It never returns an error.
//
// An explicit agentID must be registered; an unknown id yields a message
// listing the available agents rather than silently falling back. An empty
// agentID routes to the default. Usage count and last-used are bumped before
// the agent runs, so a hanging agent is still visible in stats.
func (m *Manager) Query(ctx context.Context, message, agentID string) string {
	m.mu.Lock()
	m.totalQueries++

	id := agentID
	if id == "" {
		id = m.defaultID
	}
	reg, ok := m.agents[id]
	if !ok {
		available := m.idsLocked()
		m.mu.Unlock()
		if len(available) == 0 {
			return "No agents are currently available. Please try again later."
		}
		return fmt.Sprintf("No suitable agent found for %q. Available agents: %s",
			agentID, strings.Join(available, ", "))
	}

	reg.usageCount++
	reg.lastUsed = time.Now()

	if !reg.initialized {
		if err := reg.agent.Initialize(ctx); err != nil {
			reg.errorCount++
			m.mu.Unlock()
			m.logger.Error("agent initialization failed", "agent_id", id, "error", err)
			return fmt.Sprintf("Agent %q failed to initialize: %v", id, err)
		}
		reg.initialized = true
	}
	m.mu.Unlock()

	answer, err := reg.agent.Invoke(ctx, message)
	if err != nil {
		m.mu.Lock()
		reg.errorCount++
		m.mu.Unlock()
		m.logger.Error("agent invocation failed", "agent_id", id, "error", err)
		return fmt.Sprintf("Sorry, agent %q ran into a problem: %v", id, err)
	}

	m.logger.Debug("agent handled query", "agent_id", id)
	return answer
}

// List returns a snapshot of all registered agents, ordered by id.
func (m *Manager) List() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]Status, 0, len(m.agents))
	for id, reg := range m.agents {
		statuses = append(statuses, Status{
			ID:         id,
			Info:       reg.agent.Info(),
			IsDefault:  id == m.defaultID,
			UsageCount: reg.usageCount,
			ErrorCount: reg.errorCount,
			LastUsed:   reg.lastUsed,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// SetDefault makes id the default agent. Returns false for unknown ids.
func (m *Manager) SetDefault(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[id]; !ok {
		return false
	}
	m.defaultID = id
	m.logger.Info("default agent changed", "agent_id", id)
	return true
}

// DefaultID returns the current default agent id, or "" when none is
// registered.
func (m *Manager) DefaultID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultID
}

// Stats returns registry-level statistics plus per-agent stats from agents
// implementing StatsProvider.
func (m *Manager) Stats(ctx context.Context) map[string]any {
	m.mu.Lock()
	ids := m.idsLocked()
	stats := map[string]any{
		"total_agents":  len(m.agents),
		"total_queries": m.totalQueries,
		"default_agent": m.defaultID,
	}
	providers := make(map[string]StatsProvider)
	for id, reg := range m.agents {
		if reg.stats != nil {
			providers[id] = reg.stats
		}
	}
	m.mu.Unlock()

	stats["agents"] = ids
	perAgent := make(map[string]map[string]any)
	for id, p := range providers {
		perAgent[id] = p.Stats(ctx)
	}
	if len(perAgent) > 0 {
		stats["agent_stats"] = perAgent
	}
	return stats
}

// HealthCheck probes every agent implementing HealthChecker. Agents without
// a prober count as healthy. The overall flag is true only when every agent
// is healthy.
func (m *Manager) HealthCheck(ctx context.Context) (overall bool, perAgent map[string]bool) {
	m.mu.Lock()
	probers := make(map[string]HealthChecker)
	perAgent = make(map[string]bool, len(m.agents))
	for id, reg := range m.agents {
		perAgent[id] = true
		if reg.health != nil {
			probers[id] = reg.health
		}
	}
	m.mu.Unlock()

	overall = true
	for id, h := range probers {
		healthy := h.HealthCheck(ctx)
		perAgent[id] = healthy
		if !healthy {
			overall = false
		}
	}
	return overall, perAgent
}

// Close shuts down every agent implementing Closer, returning the joined
// errors.
func (m *Manager) Close() error {
	m.mu.Lock()
	closers := make(map[string]Closer)
	for id, reg := range m.agents {
		if reg.closer != nil {
			closers[id] = reg.closer
		}
	}
	m.mu.Unlock()

	var errs []error
	for id, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing agent %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// idsLocked returns sorted agent ids. Caller holds m.mu.
func (m *Manager) idsLocked() []string {
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
