package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ragbot-io/ragbot/internal/ai"
	"github.com/ragbot-io/ragbot/internal/config"
	"github.com/ragbot-io/ragbot/internal/conversation"
	"github.com/ragbot-io/ragbot/internal/health"
)

// ErrNotInitialized is returned when Start is called before Initialize.
var ErrNotInitialized = errors.New("slack integration not initialized")

// AgentRouter matches ai.AgentRouter; re-declared here so the integration
// can be wired without importing the agent package.
type AgentRouter = ai.AgentRouter

// Integration assembles the AI service and the Slack bot, and supervises
// their lifecycle. With the Ollama provider it also runs a health monitor
// that mirrors backend availability into the bot's presence.
type Integration struct {
	cfg    *config.Config
	agents AgentRouter
	logger *slog.Logger

	service *ai.Service
	bot     *Bot
	monitor *health.Monitor

	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// NewIntegration creates an unstarted integration. agents may be nil.
func NewIntegration(cfg *config.Config, agents AgentRouter, logger *slog.Logger) *Integration {
	if logger == nil {
		logger = slog.Default()
	}
	return &Integration{
		cfg:    cfg,
		agents: agents,
		logger: logger,
	}
}

// Initialize validates configuration and builds the AI service and bot.
func (i *Integration) Initialize() error {
	if err := i.cfg.Validate(); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}

	provider, err := buildProvider(i.cfg)
	if err != nil {
		return err
	}
	i.logger.Info("ai service configured", "provider", provider.Name())

	conversations := conversation.NewStore(i.cfg.MaxConversationMessages)
	i.service = ai.NewService(provider, conversations, i.agents, i.cfg.UseAgents, i.logger)
	i.bot = NewBot(i.cfg.SlackBotToken, i.cfg.SlackAppToken, i.service, i.logger)

	if ollama, ok := provider.(*ai.OllamaProvider); ok {
		i.monitor = health.NewMonitor(
			time.Duration(i.cfg.OllamaHealthCheckInterval)*time.Second,
			ollama.HealthCheck,
			i.presenceFromHealth,
			i.logger,
		)
	}
	return nil
}

// Start runs the bot in the background, plus the Ollama health monitor
// when one was configured. Starting a running integration is a no-op.
func (i *Integration) Start(ctx context.Context) error {
	if i.bot == nil {
		return ErrNotInitialized
	}
	if !i.running.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.done = make(chan struct{})

	go func() {
		defer close(i.done)
		if err := i.bot.Run(ctx); err != nil {
			i.logger.Error("slack bot exited", "error", err)
		}
		i.running.Store(false)
	}()

	if i.monitor != nil {
		i.monitor.Start(ctx)
	}

	i.logger.Info("slack integration started")
	return nil
}

// Stop shuts the bot and monitor down and waits for the bot goroutine.
func (i *Integration) Stop() {
	if i.cancel == nil {
		return
	}
	if i.monitor != nil {
		i.monitor.Stop()
	}
	i.cancel()
	<-i.done
	i.cancel = nil
	i.logger.Info("slack integration stopped")
}

// Healthy reports whether the bot is running and, for the Ollama provider,
// whether the backend probe is passing.
func (i *Integration) Healthy() bool {
	if !i.running.Load() {
		return false
	}
	if i.monitor != nil {
		return i.monitor.Healthy()
	}
	return true
}

// Service exposes the AI service for the dashboard endpoints. Nil before
// Initialize.
func (i *Integration) Service() *ai.Service { return i.service }

// Bot exposes the underlying bot. Nil before Initialize.
func (i *Integration) Bot() *Bot { return i.bot }

func (i *Integration) presenceFromHealth(healthy bool) {
	if healthy {
		i.bot.SetPresence("auto")
	} else {
		i.bot.SetPresence("away")
	}
}

// buildProvider selects the chat provider from configuration, honoring the
// openai > anthropic > ollama precedence.
func buildProvider(cfg *config.Config) (ai.Provider, error) {
	name, err := cfg.Provider()
	if err != nil {
		return nil, err
	}
	switch name {
	case config.ProviderOpenAI:
		return ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.DefaultModel, cfg.MaxTokens, cfg.Temperature), nil
	case config.ProviderAnthropic:
		return ai.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.DefaultModel, cfg.MaxTokens, cfg.Temperature), nil
	default:
		return ai.NewOllamaProvider(cfg.OllamaHost, cfg.OllamaModel, cfg.MaxTokens, cfg.Temperature), nil
	}
}
