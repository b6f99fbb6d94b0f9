package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/exoclaw/gateway/internal/plugin"
	"github.com/exoclaw/gateway/internal/usage"
	"github.com/exoclaw/gateway/internal/wire"
)

// webhookOutgoing is the minimal shape format_outgoing may return; a "url"
// field triggers the outbound proxy per §4.2's HTTP allow list.
type webhookOutgoing struct {
	URL  string          `json:"url,omitempty"`
	Body json.RawMessage `json:"body,omitempty"`
}

// handleWebhook implements POST /webhook/{channel}: identical to chat.send
// except the body first passes through the channel adapter's
// parse_incoming, the assistant text is collected synchronously, and the
// result passes through format_outgoing (optionally proxied onward).
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	channel := strings.TrimPrefix(r.URL.Path, "/webhook/")
	channel = strings.Trim(channel, "/")
	if channel == "" {
		http.Error(w, "channel adapter not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !s.host.HasChannelAdapter(channel) {
		http.Error(w, "channel adapter not found", http.StatusNotFound)
		return
	}

	ctx := r.Context()
	normalized, err := s.host.ParseIncoming(ctx, channel, body)
	if err != nil {
		http.Error(w, "parse failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	var msg wire.AgentMessage
	if err := json.Unmarshal(normalized, &msg); err != nil || strings.TrimSpace(msg.Content) == "" {
		http.Error(w, "parse failed: empty or malformed message", http.StatusBadRequest)
		return
	}
	msg.Channel = channel
	if msg.Peer == "" {
		msg.Peer = "main"
	}

	assistantText, status := s.runSynchronousTurn(ctx, msg)
	if status != 0 {
		http.Error(w, "provider error", status)
		return
	}

	outgoing, err := s.host.FormatOutgoing(ctx, channel, json.RawMessage(mustMarshal(map[string]string{"content": assistantText})))
	if err != nil {
		http.Error(w, "format failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var parsed webhookOutgoing
	if json.Unmarshal(outgoing, &parsed) == nil && parsed.URL != "" {
		entry, _ := s.host.Manifest(channel)
		proxy := plugin.NewOutboundProxy()
		respBody, err := proxy.Post(ctx, entry.AllowedHosts, parsed.URL, parsed.Body)
		if _, disallowed := err.(*plugin.ErrHostNotAllowed); disallowed {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(respBody)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(outgoing)
}

// runSynchronousTurn mirrors chat.send's pipeline but collects the full
// assistant response before returning, as the webhook's single HTTP
// response must carry it. status is non-zero only on a provider error.
func (s *Server) runSynchronousTurn(ctx context.Context, msg wire.AgentMessage) (assistantText string, status int) {
	route := s.router.Resolve(msg)

	if err := s.locker.Lock(ctx, route.SessionKey); err != nil {
		return "", http.StatusInternalServerError
	}
	defer s.locker.Unlock(route.SessionKey)

	agentCfg, ok := s.agents[route.AgentID]
	if !ok {
		return "", http.StatusInternalServerError
	}
	prov, ok := s.providers[strings.ToLower(agentCfg.Provider)]
	if !ok {
		return "", http.StatusInternalServerError
	}

	s.store.GetOrCreate(route.SessionKey, route.AgentID)
	userMsg := wire.Text(wire.RoleUser, msg.Content)
	s.store.Append(route.SessionKey, userMsg)

	history := s.memory.AssembleContext(route.SessionKey, route.AgentID, msg.Content)
	messages := append(append([]wire.Message(nil), history...), userMsg)

	estimate := usage.EstimateInputTokens(messageBodies(messages))
	if err := s.meter.CheckBudget(route.SessionKey, estimate); err != nil {
		return "", http.StatusInternalServerError
	}

	discard := make(chan []byte, 8)
	go func() {
		for range discard {
		}
	}()
	var hadError bool
	assistantText, hadError = s.runTurn(ctx, "webhook", route.SessionKey, route.AgentID, agentCfg, prov, messages, discard)
	close(discard)
	if hadError {
		return "", http.StatusInternalServerError
	}

	assistantMsg := wire.Text(wire.RoleAssistant, assistantText)
	s.store.Append(route.SessionKey, assistantMsg)
	s.memory.ProcessResponse(route.SessionKey, userMsg, assistantMsg)
	return assistantText, 0
}

func mustMarshal(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
