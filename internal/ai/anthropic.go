package ai

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ragbot-io/ragbot/internal/conversation"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-sonnet-latest"

// AnthropicProvider completes chats through the Anthropic API. The system
// message travels in the dedicated system field, not the message list.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewAnthropicProvider creates the provider. An empty model selects
// DefaultAnthropicModel.
func NewAnthropicProvider(apiKey, model string, maxTokens int, temperature float64) *AnthropicProvider {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicProvider{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(p.maxTokens),
		Temperature: anthropic.Float(p.temperature),
	}
	for _, msg := range messages {
		switch msg.Role {
		case conversation.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case conversation.RoleAssistant:
			params.Messages = append(params.Messages,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("anthropic message: empty content")
	}
	return resp.Content[0].Text, nil
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// SetModel switches the chat model for subsequent completions.
func (p *AnthropicProvider) SetModel(model string) { p.model = model }
