package gateway

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/exoclaw/gateway/internal/config"
	"github.com/exoclaw/gateway/internal/memory"
	"github.com/exoclaw/gateway/internal/plugin"
	"github.com/exoclaw/gateway/internal/provider"
	"github.com/exoclaw/gateway/internal/routing"
	"github.com/exoclaw/gateway/internal/session"
	"github.com/exoclaw/gateway/internal/usage"
	"github.com/exoclaw/gateway/internal/wire"
)

func TestHandleChatSendStreamsTextThenDone(t *testing.T) {
	prov := &fakeProvider{batches: [][]wire.StreamEvent{
		{
			{Kind: wire.EventText, Text: "hello "},
			{Kind: wire.EventText, Text: "world"},
			{Kind: wire.EventUsage, InputTokens: 5, OutputTokens: 2},
			{Kind: wire.EventDone},
		},
	}}
	srv := newTestServer(t, config.AgentConfig{ID: "main", Provider: "anthropic", Model: "m", MaxTokens: 100}, prov, nil, "", "127.0.0.1")

	send := make(chan []byte, 16)
	params := mustJSON(wsChatSendParams{Channel: "cli", Account: "u1", Content: "hi"})
	srv.handleChatSend(context.Background(), "1", params, send)
	close(send)

	var frames []wire.Frame
	for data := range send {
		var f wire.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatal(err)
		}
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		t.Fatal("expected at least one frame")
	}
	last := frames[len(frames)-1]
	if last.Event != string(wire.EventDone) {
		t.Errorf("last frame event = %q, want done", last.Event)
	}

	var text strings.Builder
	for _, f := range frames {
		if f.Event == string(wire.EventText) {
			s, _ := f.Data.(string)
			text.WriteString(s)
		}
	}
	if text.String() != "hello world" {
		t.Errorf("assembled text = %q", text.String())
	}

	sess, ok := srv.store.Get("main:cli:u1:main")
	if !ok {
		t.Fatal("expected session to exist")
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("session log has %d messages, want 2", len(sess.Messages))
	}
	if sess.Messages[1].Content.Text != "hello world" {
		t.Errorf("assistant log entry = %q", sess.Messages[1].Content.Text)
	}
}

func TestHandleChatSendBudgetRefusalSendsSingleError(t *testing.T) {
	prov := &fakeProvider{batches: [][]wire.StreamEvent{{{Kind: wire.EventDone}}}}
	srv := newTestServer(t, config.AgentConfig{ID: "main", Provider: "anthropic", Model: "m", MaxTokens: 100}, prov, nil, "", "127.0.0.1")
	srv.meter = usage.NewMeter(usage.Limits{Session: 1})

	send := make(chan []byte, 8)
	params := mustJSON(wsChatSendParams{Channel: "cli", Account: "u1", Content: "this message is definitely longer than one token of budget"})
	srv.handleChatSend(context.Background(), "1", params, send)
	close(send)

	var resp rpcResponse
	data, ok := <-send
	if !ok {
		t.Fatal("expected a response frame")
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == "" {
		t.Errorf("expected a budget error, got %+v", resp)
	}
	if _, more := <-send; more {
		t.Error("expected exactly one frame on budget refusal")
	}
	if prov.calls != 0 {
		t.Errorf("provider should not have been called, calls=%d", prov.calls)
	}
}

func TestHandleChatSendUnknownAgentErrors(t *testing.T) {
	prov := &fakeProvider{}
	srv := newTestServer(t, config.AgentConfig{ID: "main", Provider: "anthropic", Model: "m", MaxTokens: 100}, prov, nil, "", "127.0.0.1")
	delete(srv.agents, "main")

	send := make(chan []byte, 4)
	params := mustJSON(wsChatSendParams{Channel: "cli", Account: "u1", Content: "hi"})
	srv.handleChatSend(context.Background(), "1", params, send)

	var resp rpcResponse
	json.Unmarshal(<-send, &resp)
	if resp.Error == "" {
		t.Errorf("expected unknown agent error, got %+v", resp)
	}
}

func TestHandleChatSendRetriesFallbackOnProviderError(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "exoclaw.yaml")
	contents := `
gateway:
  bind: 127.0.0.1
  port: 7200
agents:
  - id: main
    provider: anthropic
    model: primary-model
    max_tokens: 100
    fallback: backup
  - id: backup
    provider: anthropic
    model: backup-model
    max_tokens: 100
`
	if err := os.WriteFile(yamlPath, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(yamlPath)
	if err != nil {
		t.Fatal(err)
	}

	prov := &fakeProvider{batches: [][]wire.StreamEvent{
		{{Kind: wire.EventError, ErrMessage: "upstream 503"}, {Kind: wire.EventDone}},
		{{Kind: wire.EventText, Text: "recovered"}, {Kind: wire.EventDone}},
	}}

	deps := Dependencies{
		Router:    routing.New(nil, "main"),
		Store:     session.NewStore(),
		Locker:    session.NewLocker(2 * time.Second),
		Memory:    memory.NewEngine(5, false),
		Meter:     usage.NewMeter(usage.Limits{}),
		Host:      plugin.NewHost(),
		Providers: map[string]provider.Provider{"anthropic": prov},
	}

	srv, err := New(cfg, deps, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	send := make(chan []byte, 16)
	params := mustJSON(wsChatSendParams{Channel: "cli", Account: "u1", Content: "hi"})
	srv.handleChatSend(context.Background(), "1", params, send)
	close(send)

	var sawErrorFrame bool
	var text strings.Builder
	for data := range send {
		var f wire.Frame
		json.Unmarshal(data, &f)
		if f.Event == string(wire.EventError) {
			sawErrorFrame = true
		}
		if f.Event == string(wire.EventText) {
			s, _ := f.Data.(string)
			text.WriteString(s)
		}
	}
	if sawErrorFrame {
		t.Error("client should not see the failed primary attempt's error frame")
	}
	if text.String() != "recovered" {
		t.Errorf("text = %q, want the fallback attempt's output", text.String())
	}
	if prov.calls != 2 {
		t.Errorf("provider calls = %d, want 2 (primary then fallback)", prov.calls)
	}
}
