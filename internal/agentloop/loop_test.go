package agentloop

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/exoclaw/gateway/internal/plugin"
	"github.com/exoclaw/gateway/internal/provider"
	"github.com/exoclaw/gateway/internal/wire"
)

// scriptedProvider emits a fixed sequence of event batches, one batch per
// call to Stream, so a test can script a multi-turn tool-use exchange.
type scriptedProvider struct {
	batches [][]wire.StreamEvent
	calls   int
}

func (p *scriptedProvider) Stream(ctx context.Context, req provider.Request, ch chan<- wire.StreamEvent) error {
	batch := p.batches[p.calls]
	p.calls++
	for _, e := range batch {
		ch <- e
	}
	return nil
}

type fakeIsolator struct {
	response []byte
}

func (f *fakeIsolator) Invoke(ctx context.Context, m plugin.Manifest, export string, input []byte) ([]byte, error) {
	return f.response, nil
}

func TestRunSingleToolCallThenFinalText(t *testing.T) {
	prov := &scriptedProvider{batches: [][]wire.StreamEvent{
		{
			{Kind: wire.EventToolUse, ToolUseID: "t1", ToolName: "echo", ToolInput: json.RawMessage(`{"message":"hi"}`)},
			{Kind: wire.EventDone},
		},
		{
			{Kind: wire.EventText, Text: "echoed"},
			{Kind: wire.EventUsage, InputTokens: 5, OutputTokens: 1},
			{Kind: wire.EventDone},
		},
	}}

	fi := &fakeIsolator{response: []byte(`{"content":"echo: hi","is_error":false}`)}
	host := plugin.NewHost()
	host.EnableFirecracker(fi)
	host.RegisterManual("echo", plugin.Manifest{Name: "echo", Timeout: time.Second, Kind: plugin.KindTool})

	out := make(chan wire.StreamEvent, 32)
	messages := []wire.Message{wire.Text(wire.RoleUser, "say hi")}

	if err := Run(context.Background(), prov, "m", "key", 100, messages, nil, "", host, out); err != nil {
		t.Fatal(err)
	}
	close(out)

	var events []wire.StreamEvent
	for e := range out {
		events = append(events, e)
	}

	var sawToolUse, sawToolResult, sawText, sawUsage bool
	doneCount := 0
	for _, e := range events {
		switch e.Kind {
		case wire.EventToolUse:
			sawToolUse = e.ToolUseID == "t1"
		case wire.EventToolResult:
			sawToolResult = e.ToolResultOf == "t1" && e.ToolContent == "echo: hi" && !e.IsError
		case wire.EventText:
			sawText = e.Text == "echoed"
		case wire.EventUsage:
			sawUsage = true
		case wire.EventDone:
			doneCount++
		}
	}
	if !sawToolUse || !sawToolResult || !sawText || !sawUsage {
		t.Fatalf("missing expected events: tool_use=%v tool_result=%v text=%v usage=%v (events=%+v)", sawToolUse, sawToolResult, sawText, sawUsage, events)
	}
	if doneCount != 1 {
		t.Fatalf("expected exactly one done event, got %d", doneCount)
	}
	if events[len(events)-1].Kind != wire.EventDone {
		t.Error("done must be the last event")
	}
	if prov.calls != 2 {
		t.Errorf("provider called %d times, want 2", prov.calls)
	}
}

func TestRunNoToolCallsEmitsDoneImmediately(t *testing.T) {
	prov := &scriptedProvider{batches: [][]wire.StreamEvent{
		{{Kind: wire.EventText, Text: "hello"}, {Kind: wire.EventDone}},
	}}
	out := make(chan wire.StreamEvent, 32)
	if err := Run(context.Background(), prov, "m", "key", 100, nil, nil, "", nil, out); err != nil {
		t.Fatal(err)
	}
	close(out)

	var events []wire.StreamEvent
	for e := range out {
		events = append(events, e)
	}
	if len(events) != 2 || events[0].Kind != wire.EventText || events[1].Kind != wire.EventDone {
		t.Fatalf("events = %+v", events)
	}
	if prov.calls != 1 {
		t.Errorf("provider called %d times, want 1", prov.calls)
	}
}

func TestRunUnknownToolProducesErrorResultWithoutDispatch(t *testing.T) {
	prov := &scriptedProvider{batches: [][]wire.StreamEvent{
		{
			{Kind: wire.EventToolUse, ToolUseID: "t1", ToolName: "ghost"},
			{Kind: wire.EventDone},
		},
		{
			{Kind: wire.EventDone},
		},
	}}
	host := plugin.NewHost()
	out := make(chan wire.StreamEvent, 32)
	if err := Run(context.Background(), prov, "m", "key", 100, nil, nil, "", host, out); err != nil {
		t.Fatal(err)
	}
	close(out)

	var foundResult bool
	for e := range out {
		if e.Kind == wire.EventToolResult {
			foundResult = true
			if !e.IsError || e.ToolContent != "unknown tool: ghost" {
				t.Errorf("got tool result %+v", e)
			}
		}
	}
	if !foundResult {
		t.Error("expected a tool_result event for the unknown tool")
	}
}

func TestRunExceedsMaxIterations(t *testing.T) {
	var batches [][]wire.StreamEvent
	for i := 0; i < MaxIterations+1; i++ {
		batches = append(batches, []wire.StreamEvent{
			{Kind: wire.EventToolUse, ToolUseID: "t", ToolName: "noop"},
			{Kind: wire.EventDone},
		})
	}
	prov := &scriptedProvider{batches: batches}

	fi := &fakeIsolator{response: []byte(`{"content":"ok","is_error":false}`)}
	host := plugin.NewHost()
	host.EnableFirecracker(fi)
	host.RegisterManual("noop", plugin.Manifest{Name: "noop", Timeout: time.Second, Kind: plugin.KindTool})

	out := make(chan wire.StreamEvent, 256)
	if err := Run(context.Background(), prov, "m", "key", 100, nil, nil, "", host, out); err != nil {
		t.Fatal(err)
	}
	close(out)

	var lastTwo []wire.StreamEvent
	for e := range out {
		lastTwo = append(lastTwo, e)
	}
	n := len(lastTwo)
	if n < 2 || lastTwo[n-2].Kind != wire.EventError || lastTwo[n-1].Kind != wire.EventDone {
		t.Fatalf("expected error then done at the end, got tail %+v", lastTwo[max(0, n-2):])
	}
	if prov.calls != MaxIterations {
		t.Errorf("provider called %d times, want %d", prov.calls, MaxIterations)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
