package wire

import "encoding/json"

// EventKind names one of the normalized streaming events every provider
// adapter and the agent orchestrator emit.
type EventKind string

const (
	EventText       EventKind = "text"
	EventToolUse    EventKind = "tool_use"
	EventToolResult EventKind = "tool_result"
	EventUsage      EventKind = "usage"
	EventError      EventKind = "error"
	EventDone       EventKind = "done"
)

// StreamEvent is one normalized event produced while streaming a turn.
// Exactly one of the payload fields is meaningful per Kind; Done carries no
// payload at all.
type StreamEvent struct {
	Kind EventKind

	Text string

	ToolUseID    string
	ToolName     string
	ToolInput    json.RawMessage
	ToolResultOf string
	ToolContent  string
	IsError      bool

	InputTokens  int
	OutputTokens int

	ErrMessage string
}

// Frame is the exact JSON shape sent over the gateway transport for one
// StreamEvent within an RPC stream identified by id.
type Frame struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ToFrame renders e into the wire Frame for request id.
func (e StreamEvent) ToFrame(id string) Frame {
	switch e.Kind {
	case EventText:
		return Frame{ID: id, Event: string(EventText), Data: e.Text}
	case EventToolUse:
		return Frame{ID: id, Event: string(EventToolUse), Data: map[string]any{
			"id": e.ToolUseID, "name": e.ToolName, "input": e.ToolInput,
		}}
	case EventToolResult:
		return Frame{ID: id, Event: string(EventToolResult), Data: map[string]any{
			"tool_use_id": e.ToolResultOf, "content": e.ToolContent, "is_error": e.IsError,
		}}
	case EventUsage:
		return Frame{ID: id, Event: string(EventUsage), Data: map[string]any{
			"input_tokens": e.InputTokens, "output_tokens": e.OutputTokens,
		}}
	case EventError:
		return Frame{ID: id, Event: string(EventError), Data: e.ErrMessage}
	case EventDone:
		return Frame{ID: id, Event: string(EventDone)}
	default:
		return Frame{ID: id, Event: "error", Data: "unknown event kind"}
	}
}
