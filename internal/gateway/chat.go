package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/exoclaw/gateway/internal/agentloop"
	"github.com/exoclaw/gateway/internal/config"
	"github.com/exoclaw/gateway/internal/plugin"
	"github.com/exoclaw/gateway/internal/provider"
	"github.com/exoclaw/gateway/internal/usage"
	"github.com/exoclaw/gateway/internal/wire"
)

// wsChatSendParams is the params shape for the chat.send method.
type wsChatSendParams struct {
	Channel string `json:"channel"`
	Account string `json:"account"`
	Peer    string `json:"peer,omitempty"`
	Content string `json:"content"`
	Guild   string `json:"guild,omitempty"`
	Team    string `json:"team,omitempty"`
}

// handleChatSend runs the full chat pipeline: route resolution, session
// locking, context assembly, budget admission, the agent tool-use loop, and
// response persistence. It writes event frames directly to send, ending
// with exactly one done frame (or a single error response if the turn
// never starts).
func (s *Server) handleChatSend(ctx context.Context, id string, rawParams json.RawMessage, send chan<- []byte) {
	var params wsChatSendParams
	if err := json.Unmarshal(rawParams, &params); err != nil {
		sendJSON(send, rpcResponse{ID: id, Error: fmt.Sprintf("parse error: %s", err)})
		return
	}
	peer := params.Peer
	if peer == "" {
		peer = "main"
	}

	route := s.router.Resolve(wire.AgentMessage{
		Channel: params.Channel,
		Account: params.Account,
		Peer:    peer,
		Guild:   params.Guild,
		Team:    params.Team,
		Content: params.Content,
	})

	if err := s.locker.Lock(ctx, route.SessionKey); err != nil {
		sendJSON(send, rpcResponse{ID: id, Error: err.Error()})
		return
	}
	defer s.locker.Unlock(route.SessionKey)

	agentCfg, ok := s.agents[route.AgentID]
	if !ok {
		sendJSON(send, rpcResponse{ID: id, Error: fmt.Sprintf("unknown agent: %s", route.AgentID)})
		return
	}
	prov, ok := s.providers[strings.ToLower(agentCfg.Provider)]
	if !ok {
		sendJSON(send, rpcResponse{ID: id, Error: fmt.Sprintf("no provider configured for %q", agentCfg.Provider)})
		return
	}

	s.store.GetOrCreate(route.SessionKey, route.AgentID)
	userMsg := wire.Text(wire.RoleUser, params.Content)
	s.store.Append(route.SessionKey, userMsg)

	history := s.memory.AssembleContext(route.SessionKey, route.AgentID, params.Content)
	messages := append(append([]wire.Message(nil), history...), userMsg)

	estimate := usage.EstimateInputTokens(messageBodies(messages))
	if err := s.meter.CheckBudget(route.SessionKey, estimate); err != nil {
		sendJSON(send, rpcResponse{ID: id, Error: err.Error()})
		return
	}

	assistantText, _ := s.runTurn(ctx, id, route.SessionKey, route.AgentID, agentCfg, prov, messages, send)

	assistantMsg := wire.Text(wire.RoleAssistant, assistantText)
	s.store.Append(route.SessionKey, assistantMsg)
	s.memory.ProcessResponse(route.SessionKey, userMsg, assistantMsg)
}

// runTurn is the Runner/meter-relay pair of §5: collectTurn runs
// agentloop.Run (the Runner) in its own goroutine and buffers the whole
// attempt's events; only once the attempt has finished does this goroutine
// (the meter relay) record usage and forward every buffered event to the
// client as a frame. No frame is forwarded while an attempt is still
// running. When an attempt emits an error event it retries once against
// agent.fallback, if configured, before forwarding an error frame — the
// retry is transparent to the caller, who only ever sees the frames of
// whichever attempt is finally forwarded. It returns the concatenation of
// all text events from that attempt, which becomes the session log's
// assistant turn.
func (s *Server) runTurn(ctx context.Context, id, sessionKey, agentID string, agentCfg config.AgentConfig, prov provider.Provider, messages []wire.Message, send chan<- []byte) (text string, hadError bool) {
	events, text, hadError := s.collectTurn(ctx, prov, agentCfg, messages)
	usedAgentID, usedAgentCfg := agentID, agentCfg

	if hadError {
		if fb := agentCfg.ResolvedFallback(); fb != nil {
			if fbProv, ok := s.providers[strings.ToLower(fb.Provider)]; ok {
				fbEvents, fbText, fbHadError := s.collectTurn(ctx, fbProv, *fb, messages)
				events, text, hadError = fbEvents, fbText, fbHadError
				usedAgentID, usedAgentCfg = fb.ID, *fb
			}
		}
	}

	for _, evt := range events {
		if evt.Kind == wire.EventUsage {
			s.meter.RecordUsage(sessionKey, usedAgentID, strings.ToLower(usedAgentCfg.Provider), usedAgentCfg.Model, uint64(evt.InputTokens), uint64(evt.OutputTokens))
		}
		sendFrame(send, evt.ToFrame(id))
	}
	return text, hadError
}

// collectTurn runs one full attempt of the tool-use loop against prov and
// buffers every event it emits, rather than forwarding as it goes, so a
// failed attempt can be silently discarded in favor of a fallback retry.
func (s *Server) collectTurn(ctx context.Context, prov provider.Provider, agentCfg config.AgentConfig, messages []wire.Message) (events []wire.StreamEvent, text string, hadError bool) {
	tools := toolSchemasFromHost(s.host)
	ch := make(chan wire.StreamEvent, 32)

	go func() {
		defer close(ch)
		if err := agentloop.Run(ctx, prov, agentCfg.Model, agentCfg.APIKey, agentCfg.MaxTokens, messages, tools, agentCfg.SystemPrompt, s.host, ch); err != nil {
			ch <- wire.StreamEvent{Kind: wire.EventError, ErrMessage: err.Error()}
			ch <- wire.StreamEvent{Kind: wire.EventDone}
		}
	}()

	var assistantText strings.Builder
	for evt := range ch {
		events = append(events, evt)
		switch evt.Kind {
		case wire.EventText:
			assistantText.WriteString(evt.Text)
		case wire.EventError:
			hadError = true
		}
	}
	return events, assistantText.String(), hadError
}

// messageBodies extracts the text a budget estimate should count: plain
// text content and any tool_result content already folded into history.
func messageBodies(messages []wire.Message) []string {
	bodies := make([]string, 0, len(messages))
	for _, m := range messages {
		if len(m.Blocks) > 0 {
			for _, b := range m.Blocks {
				bodies = append(bodies, b.Text, b.ToolContent)
			}
			continue
		}
		bodies = append(bodies, m.Content.Text, m.Content.ToolContent)
	}
	return bodies
}

// toolSchemasFromHost projects every registered Tool plugin's manifest into
// the provider-agnostic ToolSchema shape agentloop/provider adapters need.
func toolSchemasFromHost(host *plugin.Host) []provider.ToolSchema {
	if host == nil {
		return nil
	}
	manifests := host.List()
	out := make([]provider.ToolSchema, 0, len(manifests))
	for _, m := range manifests {
		if m.Kind != plugin.KindTool {
			continue
		}
		var schema map[string]any
		if len(m.Schema) > 0 {
			_ = json.Unmarshal(m.Schema, &schema)
		}
		out = append(out, provider.ToolSchema{Name: m.Name, InputSchema: schema})
	}
	return out
}
