// Package wire defines the message and streaming-event types shared between
// the memory engine, the provider adapters, the agent orchestrator, and the
// gateway transport.
package wire

import (
	"encoding/json"
	"time"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentKind discriminates the tagged union stored in Message.Content.
type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentToolUse    ContentKind = "tool_use"
	ContentToolResult ContentKind = "tool_result"
)

// Content is the tagged union a Message body carries: plain text, a
// tool-use request, or a tool-result reply.
type Content struct {
	Kind ContentKind `json:"kind"`

	Text string `json:"text,omitempty"`

	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	ToolResultFor string `json:"tool_result_for,omitempty"`
	ToolContent   string `json:"tool_content,omitempty"`
	IsError       bool   `json:"is_error,omitempty"`
}

// Message is one turn in a session's durable log. A turn produced by the
// tool-use loop may carry several content blocks at once (one per buffered
// tool call); Blocks holds those, leaving Content the zero value. Exactly
// one of Content/Blocks is populated.
type Message struct {
	Role       Role      `json:"role"`
	Content    Content   `json:"content"`
	Blocks     []Content `json:"blocks,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	TokenCount int       `json:"token_count,omitempty"`
}

// Text builds a plain text message for role at the current time.
func Text(role Role, text string) Message {
	return Message{Role: role, Content: Content{Kind: ContentText, Text: text}, Timestamp: time.Now()}
}

// ToolUseTurn builds the assistant message the orchestrator appends to
// history after buffering one or more ToolUse events in a turn.
func ToolUseTurn(blocks []Content) Message {
	return Message{Role: RoleAssistant, Blocks: blocks, Timestamp: time.Now()}
}

// ToolResultTurn builds the user message the orchestrator appends to
// history after dispatching the buffered tool calls from ToolUseTurn.
func ToolResultTurn(blocks []Content) Message {
	return Message{Role: RoleUser, Blocks: blocks, Timestamp: time.Now()}
}

// ProviderMessage is the shape a provider adapter sends upstream: either a
// plain {role, content} pair or a structured content-block list.
type ProviderMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// AsProviderMessage converts a durable Message into the shape a provider API
// expects on the wire.
func (m Message) AsProviderMessage() ProviderMessage {
	if len(m.Blocks) > 0 {
		blocks := make([]map[string]any, 0, len(m.Blocks))
		for _, c := range m.Blocks {
			blocks = append(blocks, contentBlock(c))
		}
		return ProviderMessage{Role: string(m.Role), Content: blocks}
	}

	switch m.Content.Kind {
	case ContentToolUse:
		return ProviderMessage{Role: "assistant", Content: []map[string]any{contentBlock(m.Content)}}
	case ContentToolResult:
		return ProviderMessage{Role: "user", Content: []map[string]any{contentBlock(m.Content)}}
	default:
		return ProviderMessage{Role: string(m.Role), Content: m.Content.Text}
	}
}

func contentBlock(c Content) map[string]any {
	switch c.Kind {
	case ContentToolUse:
		return map[string]any{
			"type": "tool_use", "id": c.ToolUseID, "name": c.ToolName, "input": c.ToolInput,
		}
	case ContentToolResult:
		return map[string]any{
			"type": "tool_result", "tool_use_id": c.ToolResultFor, "content": c.ToolContent, "is_error": c.IsError,
		}
	default:
		return map[string]any{"type": "text", "text": c.Text}
	}
}

// AgentMessage is a normalized incoming message from a channel, used by the
// session router to resolve which agent/session it belongs to.
type AgentMessage struct {
	Channel string `json:"channel"`
	Account string `json:"account"`
	Peer    string `json:"peer,omitempty"`
	Guild   string `json:"guild,omitempty"`
	Team    string `json:"team,omitempty"`
	Content string `json:"content"`
}
