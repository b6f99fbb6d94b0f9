package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/exoclaw/gateway/internal/config"
	"github.com/exoclaw/gateway/internal/plugin"
	"github.com/exoclaw/gateway/internal/wire"
)

// scriptedIsolator answers channel-adapter exports with canned responses
// keyed by export name, so webhook tests never spawn a real plugin process.
type scriptedIsolator struct {
	responses map[string][]byte
	errs      map[string]error
}

func (s *scriptedIsolator) Invoke(ctx context.Context, m plugin.Manifest, export string, input []byte) ([]byte, error) {
	if err, ok := s.errs[export]; ok {
		return nil, err
	}
	return s.responses[export], nil
}

func newWebhookTestServer(t *testing.T, iso *scriptedIsolator, allowedHosts []string) *Server {
	t.Helper()
	prov := &fakeProvider{batches: [][]wire.StreamEvent{
		{{Kind: wire.EventText, Text: "pong"}, {Kind: wire.EventDone}},
	}}
	srv := newTestServer(t, config.AgentConfig{ID: "main", Provider: "anthropic", Model: "m", MaxTokens: 100}, prov, nil, "", "127.0.0.1")
	srv.host.EnableFirecracker(iso)
	srv.host.RegisterManual("slack", plugin.Manifest{Name: "slack", Kind: plugin.KindChannelAdapter, AllowedHosts: allowedHosts})
	return srv
}

func TestHandleWebhookUnknownChannelIs404(t *testing.T) {
	srv := newWebhookTestServer(t, &scriptedIsolator{responses: map[string][]byte{}}, nil)
	req := httptest.NewRequest(http.MethodPost, "/webhook/bogus", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleWebhookParseFailureIs400(t *testing.T) {
	iso := &scriptedIsolator{errs: map[string]error{"parse_incoming": fmt.Errorf("boom")}}
	srv := newWebhookTestServer(t, iso, nil)
	req := httptest.NewRequest(http.MethodPost, "/webhook/slack", strings.NewReader(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleWebhookEmptyContentIs400(t *testing.T) {
	normalized, _ := json.Marshal(wire.AgentMessage{Account: "u1", Content: ""})
	iso := &scriptedIsolator{responses: map[string][]byte{"parse_incoming": normalized}}
	srv := newWebhookTestServer(t, iso, nil)
	req := httptest.NewRequest(http.MethodPost, "/webhook/slack", strings.NewReader(`{"text":""}`))
	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleWebhookSuccessReturnsFormattedBody(t *testing.T) {
	normalized, _ := json.Marshal(wire.AgentMessage{Account: "u1", Content: "hi"})
	formatted := []byte(`{"text":"pong"}`)
	iso := &scriptedIsolator{responses: map[string][]byte{
		"parse_incoming":  normalized,
		"format_outgoing": formatted,
	}}
	srv := newWebhookTestServer(t, iso, nil)
	req := httptest.NewRequest(http.MethodPost, "/webhook/slack", strings.NewReader(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != string(formatted) {
		t.Errorf("body = %s, want %s", rec.Body.String(), formatted)
	}
}

func TestHandleWebhookDisallowedProxyHostIs403(t *testing.T) {
	normalized, _ := json.Marshal(wire.AgentMessage{Account: "u1", Content: "hi"})
	formatted, _ := json.Marshal(map[string]string{"url": "https://evil.example.com/post"})
	iso := &scriptedIsolator{responses: map[string][]byte{
		"parse_incoming":  normalized,
		"format_outgoing": formatted,
	}}
	srv := newWebhookTestServer(t, iso, []string{"hooks.slack.com"})
	req := httptest.NewRequest(http.MethodPost, "/webhook/slack", strings.NewReader(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestHandleWebhookProviderErrorIs500(t *testing.T) {
	normalized, _ := json.Marshal(wire.AgentMessage{Account: "u1", Content: "hi"})
	iso := &scriptedIsolator{responses: map[string][]byte{"parse_incoming": normalized}}
	srv := newWebhookTestServer(t, iso, nil)
	srv.providers["anthropic"] = &fakeProvider{batches: [][]wire.StreamEvent{
		{{Kind: wire.EventError, ErrMessage: "provider exploded"}, {Kind: wire.EventDone}},
	}}
	req := httptest.NewRequest(http.MethodPost, "/webhook/slack", strings.NewReader(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHandleWebhookMethodNotAllowed(t *testing.T) {
	srv := newWebhookTestServer(t, &scriptedIsolator{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/webhook/slack", nil)
	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
