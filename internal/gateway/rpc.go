package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// rpcRequest is one inbound frame on /ws: {id, method, params}. ID accepts
// either a JSON string or number; normalizeID renders either shape as the
// string carried on every response.
type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// rpcResponse is the single-frame reply to a non-streaming method.
type rpcResponse struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func normalizeID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strconv.Quote(string(raw))
}

// handleRPCFrame decodes one inbound text frame and dispatches it to the
// matching method, replying on send. Malformed JSON produces the exact
// parse-error response the transport always uses id "0" for.
func (s *Server) handleRPCFrame(ctx context.Context, data []byte, send chan<- []byte) {
	var req rpcRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sendJSON(send, rpcResponse{ID: "0", Error: fmt.Sprintf("parse error: %s", err)})
		return
	}
	id := normalizeID(req.ID)

	switch req.Method {
	case "ping":
		sendJSON(send, rpcResponse{ID: id, Result: "pong"})
	case "status":
		sendJSON(send, rpcResponse{ID: id, Result: s.status()})
	case "plugin.list":
		sendJSON(send, rpcResponse{ID: id, Result: s.pluginList()})
	case "chat.send":
		s.handleChatSend(ctx, id, req.Params, send)
	default:
		sendJSON(send, rpcResponse{ID: id, Error: fmt.Sprintf("unknown method: %s", req.Method)})
	}
}

type statusResult struct {
	Version    string  `json:"version"`
	Plugins    int     `json:"plugins"`
	Sessions   int     `json:"sessions"`
	UptimeSecs float64 `json:"uptime_seconds"`
}

func (s *Server) status() statusResult {
	return statusResult{
		Version:    ProtocolVersion,
		Plugins:    s.host.Count(),
		Sessions:   s.router.SessionCount(),
		UptimeSecs: time.Since(s.startTime).Seconds(),
	}
}

type pluginListEntry struct {
	Name string `json:"name"`
}

func (s *Server) pluginList() []pluginListEntry {
	manifests := s.host.List()
	out := make([]pluginListEntry, 0, len(manifests))
	for _, m := range manifests {
		out = append(out, pluginListEntry{Name: m.Name})
	}
	return out
}
