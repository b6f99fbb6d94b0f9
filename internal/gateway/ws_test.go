package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/exoclaw/gateway/internal/config"
)

func dialTestServer(t *testing.T, srv *Server) (*websocket.Conn, func()) {
	t.Helper()
	ts := httptest.NewServer(srv.Mux())
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		ts.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() { conn.Close(); ts.Close() }
}

func TestWSHandshakeNoTokenSendsHelloImmediately(t *testing.T) {
	srv := newTestServer(t, config.AgentConfig{ID: "main", Provider: "anthropic", Model: "m", MaxTokens: 10}, &fakeProvider{}, nil, "", "127.0.0.1")
	conn, cleanup := dialTestServer(t, srv)
	defer cleanup()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var h hello
	if err := json.Unmarshal(data, &h); err != nil {
		t.Fatal(err)
	}
	if !h.OK || h.Version != ProtocolVersion {
		t.Errorf("hello = %+v", h)
	}
}

func TestWSHandshakeWrongTokenFails(t *testing.T) {
	srv := newTestServer(t, config.AgentConfig{ID: "main", Provider: "anthropic", Model: "m", MaxTokens: 10}, &fakeProvider{}, nil, "s3cr3t", "127.0.0.1")
	conn, cleanup := dialTestServer(t, srv)
	defer cleanup()

	if err := conn.WriteJSON(authFrame{Token: "wrong"}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var af authFailure
	if err := json.Unmarshal(data, &af); err != nil {
		t.Fatal(err)
	}
	if af.Error != "auth_failed" || af.Code != 4001 {
		t.Errorf("authFailure = %+v", af)
	}
}

func TestWSHandshakeCorrectTokenSucceeds(t *testing.T) {
	srv := newTestServer(t, config.AgentConfig{ID: "main", Provider: "anthropic", Model: "m", MaxTokens: 10}, &fakeProvider{}, nil, "s3cr3t", "127.0.0.1")
	conn, cleanup := dialTestServer(t, srv)
	defer cleanup()

	if err := conn.WriteJSON(authFrame{Token: "s3cr3t"}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var h hello
	if err := json.Unmarshal(data, &h); err != nil {
		t.Fatal(err)
	}
	if !h.OK {
		t.Errorf("hello = %+v", h)
	}

	if err := conn.WriteJSON(map[string]string{"id": "1", "method": "ping"}); err != nil {
		t.Fatal(err)
	}
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var resp rpcResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result != "pong" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestNewServerRejectsNonLoopbackWithoutToken(t *testing.T) {
	cfg := &config.Config{Gateway: config.GatewayConfig{Bind: "0.0.0.0", Port: 7200}}
	deps := gatewayDeps(config.AgentConfig{ID: "main", Provider: "anthropic"}, &fakeProvider{}, nil)
	if _, err := New(cfg, deps, testLogger()); err == nil {
		t.Error("expected error for non-loopback bind with no token")
	}
}
