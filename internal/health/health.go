// Package health runs a background availability probe with an atomically
// readable result.
package health

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the probe period when none is configured.
const DefaultInterval = 30 * time.Second

// Monitor periodically runs a probe and tracks the latest result. Healthy()
// is safe to call from any goroutine; onChange fires only on transitions.
type Monitor struct {
	interval time.Duration
	probe    func(ctx context.Context) bool
	onChange func(healthy bool)
	healthy  atomic.Bool
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor. onChange may be nil. A non-positive
// interval falls back to DefaultInterval.
func NewMonitor(interval time.Duration, probe func(ctx context.Context) bool, onChange func(healthy bool), logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		interval: interval,
		probe:    probe,
		onChange: onChange,
		logger:   logger,
	}
}

// Start probes once immediately, then on every tick until Stop or context
// cancellation. Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	m.check(ctx)

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.check(ctx)
			}
		}
	}()
}

// Stop halts probing and waits for the background goroutine to exit.
// Stopping a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Healthy returns the most recent probe result.
func (m *Monitor) Healthy() bool {
	return m.healthy.Load()
}

func (m *Monitor) check(ctx context.Context) {
	healthy := m.probe(ctx)
	previous := m.healthy.Swap(healthy)
	if previous == healthy {
		return
	}

	if healthy {
		m.logger.Info("health probe recovered")
	} else {
		m.logger.Warn("health probe failing")
	}
	if m.onChange != nil {
		m.onChange(healthy)
	}
}
