// Package agentloop implements the bounded tool-use state machine that sits
// between a provider adapter and the gateway transport: it drains one
// provider turn, dispatches any buffered tool calls through the plugin
// host, folds the results back into the message history, and repeats until
// the model stops calling tools or the iteration bound is hit.
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/exoclaw/gateway/internal/plugin"
	"github.com/exoclaw/gateway/internal/provider"
	"github.com/exoclaw/gateway/internal/wire"
)

// MaxIterations bounds the number of provider turns a single call to Run may
// take before it gives up and reports an error.
const MaxIterations = 10

// eventChannelCapacity is the buffer depth for the per-turn inner channel a
// provider writes into; it matches the gateway's outer event channel
// capacity so draining never becomes the bottleneck.
const eventChannelCapacity = 32

// pendingToolUse is one buffered ToolUse event awaiting dispatch.
type pendingToolUse struct {
	id    string
	name  string
	input json.RawMessage
}

// Run drives the tool-use loop for one chat turn. model, apiKey, and
// maxTokens are passed through to every provider.Request; messages is the
// full provider-shaped history including the new user turn. Every
// normalized event forwarded to out is ultimately written to the
// transport; out is never closed by Run.
func Run(ctx context.Context, prov provider.Provider, model, apiKey string, maxTokens int, messages []wire.Message, tools []provider.ToolSchema, systemPrompt string, host *plugin.Host, out chan<- wire.StreamEvent) error {
	current := append([]wire.Message(nil), messages...)

	for iter := 0; iter < MaxIterations; iter++ {
		inner := make(chan wire.StreamEvent, eventChannelCapacity)
		streamErr := make(chan error, 1)

		go func() {
			defer close(inner)
			streamErr <- prov.Stream(ctx, provider.Request{
				Model:        model,
				APIKey:       apiKey,
				MaxTokens:    maxTokens,
				SystemPrompt: systemPrompt,
				Messages:     current,
				Tools:        tools,
			}, inner)
		}()

		var pending []pendingToolUse
		for evt := range inner {
			switch evt.Kind {
			case wire.EventDone:
				// End-of-turn only; the loop, not the transport, decides
				// whether the conversation is actually finished.
				continue
			case wire.EventToolUse:
				pending = append(pending, pendingToolUse{id: evt.ToolUseID, name: evt.ToolName, input: evt.ToolInput})
				out <- evt
			default:
				out <- evt
			}
		}
		if err := <-streamErr; err != nil {
			return err
		}

		if len(pending) == 0 {
			out <- wire.StreamEvent{Kind: wire.EventDone}
			return nil
		}

		toolUseBlocks := make([]wire.Content, 0, len(pending))
		for _, p := range pending {
			toolUseBlocks = append(toolUseBlocks, wire.Content{
				Kind: wire.ContentToolUse, ToolUseID: p.id, ToolName: p.name, ToolInput: p.input,
			})
		}
		current = append(current, wire.ToolUseTurn(toolUseBlocks))

		toolResultBlocks := make([]wire.Content, 0, len(pending))
		for _, p := range pending {
			result := dispatchTool(ctx, host, p)
			out <- wire.StreamEvent{
				Kind:         wire.EventToolResult,
				ToolResultOf: p.id,
				ToolContent:  result.Content,
				IsError:      result.IsError,
			}
			toolResultBlocks = append(toolResultBlocks, wire.Content{
				Kind: wire.ContentToolResult, ToolResultFor: p.id, ToolContent: result.Content, IsError: result.IsError,
			})
		}
		current = append(current, wire.ToolResultTurn(toolResultBlocks))
	}

	out <- wire.StreamEvent{Kind: wire.EventError, ErrMessage: "tool-use loop exceeded max iterations"}
	out <- wire.StreamEvent{Kind: wire.EventDone}
	return nil
}

// dispatchTool looks up the plugin named by the tool call and invokes it;
// an unknown tool never reaches the plugin host.
func dispatchTool(ctx context.Context, host *plugin.Host, p pendingToolUse) plugin.ToolResult {
	if host == nil || !host.HasTool(p.name) {
		return plugin.ToolResult{Content: fmt.Sprintf("unknown tool: %s", p.name), IsError: true}
	}
	input := p.input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	return host.CallTool(ctx, p.name, input)
}
