// Package providers contains AI provider client implementations
package providers

import (
	"context"
	"errors"
)

// ErrUpstreamUnavailable wraps every failure of the model provider. Callers
// surface it as a transient failure and never retry on their own.
var ErrUpstreamUnavailable = errors.New("AI service temporarily unavailable")

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`    // "user", "assistant"
	Content string `json:"content"` // Text content
}

// ChatRequest represents a request to the AI provider
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
}

// ChatResponse represents a response from the AI provider
type ChatResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	StopReason   string `json:"stop_reason,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Provider defines the interface for AI providers
type Provider interface {
	// Chat sends a chat request and returns the response
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Name returns the provider name
	Name() string
}
