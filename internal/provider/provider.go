// Package provider normalizes the streaming wire formats of different LLM
// APIs (Anthropic, OpenAI) into the one event vocabulary the agent
// orchestrator consumes.
package provider

import (
	"context"

	"github.com/exoclaw/gateway/internal/wire"
)

// ToolSchema describes one tool available to the model, in a
// provider-agnostic shape; BuildToolsForProvider renders it into each
// provider's native tool-definition format.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model        string
	APIKey       string
	MaxTokens    int
	SystemPrompt string
	Messages     []wire.Message
	Tools        []ToolSchema
}

// Provider streams a completion, emitting normalized StreamEvents on ch.
// When Stream returns nil, the last event it emitted is wire.EventDone; a
// non-nil error is returned only when the request cannot be built, and then
// no events are emitted. ch is never closed by the implementation.
type Provider interface {
	Stream(ctx context.Context, req Request, ch chan<- wire.StreamEvent) error
}
