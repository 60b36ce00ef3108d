package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ragbot-io/ragbot/internal/conversation"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-3.5-turbo"

// OpenAIProvider completes chats through the OpenAI API.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIProvider creates the provider. An empty model selects
// DefaultOpenAIModel.
func NewOpenAIProvider(apiKey, model string, maxTokens int, temperature float64) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(p.model),
		MaxCompletionTokens: openai.Int(int64(p.maxTokens)),
		Temperature:         openai.Float(p.temperature),
	}
	for _, msg := range messages {
		switch msg.Role {
		case conversation.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case conversation.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// SetModel switches the chat model for subsequent completions.
func (p *OpenAIProvider) SetModel(model string) { p.model = model }
