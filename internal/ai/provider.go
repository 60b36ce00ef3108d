// Package ai turns user messages into chat-model responses, with
// per-user conversation context and optional agent routing.
package ai

import (
	"context"

	"github.com/ragbot-io/ragbot/internal/conversation"
)

// Provider is a chat completion backend. Messages arrive oldest first; a
// leading system-role message carries the instructions.
type Provider interface {
	Complete(ctx context.Context, messages []conversation.Message) (string, error)
	Name() string
}

// modelSetter is implemented by providers whose model can change at
// runtime.
type modelSetter interface {
	SetModel(model string)
}
