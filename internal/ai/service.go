package ai

import (
	"context"
	"log/slog"

	"github.com/ragbot-io/ragbot/internal/conversation"
)

// promptWindow bounds how many recent turns are sent to the provider.
const promptWindow = 10

// apologyMessage is the user-facing response for any provider failure.
// Callers of Response never see an error.
const apologyMessage = "I apologize, but I encountered an error processing your request. Please try again."

// systemPreamble instructs the model on tone and length for chat surfaces.
const systemPreamble = "You are a helpful AI assistant integrated into Slack. " +
	"Provide concise, helpful responses to user questions. " +
	"Be friendly and professional. Keep responses reasonably short for chat."

// AgentRouter dispatches messages to registered agents. Implemented by
// agent.Manager.
type AgentRouter interface {
	Query(ctx context.Context, message, agentID string) string
}

// Service produces chat responses: either direct provider completions with
// per-user history, or agent dispatch when routing is enabled.
type Service struct {
	provider      Provider
	conversations *conversation.Store
	agents        AgentRouter
	useAgents     bool
	logger        *slog.Logger
}

// NewService creates the service. agents may be nil when no agent routing
// is configured; useAgents routes every message through the agent manager.
func NewService(provider Provider, conversations *conversation.Store, agents AgentRouter, useAgents bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider:      provider,
		conversations: conversations,
		agents:        agents,
		useAgents:     useAgents,
		logger:        logger,
	}
}

// Response answers a user message. It never returns an error: provider
// failures become an apology string so the chat surface always has
// something to post.
//
// The message routes to the agent manager when agent routing is enabled
// globally or an explicit agentID is given. Otherwise the user's history
// gains the message, the provider completes over the system preamble plus
// the last turns, and the reply is recorded before being returned.
func (s *Service) Response(ctx context.Context, message, userID, agentID string) string {
	if s.agents != nil && (s.useAgents || agentID != "") {
		return s.agents.Query(ctx, message, agentID)
	}

	s.conversations.Append(userID, conversation.RoleUser, message)

	prompt := make([]conversation.Message, 0, promptWindow+1)
	prompt = append(prompt, conversation.Message{
		Role:    conversation.RoleSystem,
		Content: systemPreamble,
	})
	prompt = append(prompt, s.conversations.Last(userID, promptWindow)...)

	reply, err := s.provider.Complete(ctx, prompt)
	if err != nil {
		s.logger.Error("provider completion failed",
			"provider", s.provider.Name(),
			"user_id", userID,
			"error", err)
		return apologyMessage
	}

	s.conversations.Append(userID, conversation.RoleAssistant, reply)
	return reply
}

// ClearConversation drops a user's history, reporting whether any existed.
func (s *Service) ClearConversation(userID string) bool {
	return s.conversations.Clear(userID)
}

// Stats reports provider identity and conversation volume.
func (s *Service) Stats() map[string]any {
	users, messages := s.conversations.Stats()
	return map[string]any{
		"provider":            s.provider.Name(),
		"total_conversations": users,
		"total_messages":      messages,
		"agents_enabled":      s.useAgents,
	}
}

// SetModel switches the provider's model when it supports that.
func (s *Service) SetModel(model string) bool {
	if setter, ok := s.provider.(modelSetter); ok {
		setter.SetModel(model)
		s.logger.Info("model changed", "model", model)
		return true
	}
	return false
}

// Provider returns the active provider's name.
func (s *Service) Provider() string { return s.provider.Name() }
