package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ragbot-io/ragbot/internal/conversation"
)

// maxOllamaResponseBytes bounds how much of a response body is read.
const maxOllamaResponseBytes = 16 << 20

// OllamaProvider completes chats through a local Ollama server. The
// conversation is flattened into a single role-prefixed prompt for the
// generate endpoint.
type OllamaProvider struct {
	host        string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewOllamaProvider creates the provider for the given host, e.g.
// "http://localhost:11434".
func NewOllamaProvider(host, model string, maxTokens int, temperature float64) *OllamaProvider {
	return &OllamaProvider{
		host:        strings.TrimRight(host, "/"),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Complete implements Provider.
func (p *OllamaProvider) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  p.model,
		Prompt: flattenPrompt(messages),
		Stream: false,
		Options: map[string]any{
			"temperature": p.temperature,
			"num_predict": p.maxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encoding ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxOllamaResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, raw)
	}

	var generated ollamaGenerateResponse
	if err := json.Unmarshal(raw, &generated); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	if generated.Error != "" {
		return "", fmt.Errorf("ollama error: %s", generated.Error)
	}
	return generated.Response, nil
}

// Name implements Provider.
func (p *OllamaProvider) Name() string { return "ollama" }

// HealthCheck reports whether the Ollama server answers its tags endpoint.
func (p *OllamaProvider) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxOllamaResponseBytes))
	return resp.StatusCode == http.StatusOK
}

// SetModel switches the model for subsequent completions.
func (p *OllamaProvider) SetModel(model string) { p.model = model }

// flattenPrompt renders the conversation as role-prefixed lines ending with
// an open assistant turn.
func flattenPrompt(messages []conversation.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case conversation.RoleSystem:
			fmt.Fprintf(&b, "System: %s\n", msg.Content)
		case conversation.RoleUser:
			fmt.Fprintf(&b, "User: %s\n", msg.Content)
		case conversation.RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n", msg.Content)
		}
	}
	b.WriteString("Assistant: ")
	return b.String()
}
