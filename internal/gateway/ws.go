package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/exoclaw/gateway/internal/wire"
)

const (
	wsReadLimit  = 1 << 20
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 45 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// authFrame is the exact first inbound frame required when a token is
// configured.
type authFrame struct {
	Token string `json:"token"`
}

// authFailure is the exact frame sent on a token mismatch, just before the
// connection is closed.
type authFailure struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// hello is sent once the connection is authenticated (or immediately, when
// no token is configured).
type hello struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}

func (s *Server) newWSHandler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan []byte, 32)
	writerDone := make(chan struct{})
	go func() {
		wsWriteLoop(ctx, conn, send)
		close(writerDone)
	}()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	if !s.handshake(conn, send) {
		// Let the writer flush any queued auth_failed frame before the
		// deferred cancel and Close tear the connection down.
		close(send)
		<-writerDone
		return
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleRPCFrame(ctx, data, send)
	}
}

// handshake runs the token challenge (if configured) and then sends the
// hello frame. It returns false if the connection must be torn down.
func (s *Server) handshake(conn *websocket.Conn, send chan<- []byte) bool {
	token := s.cfg.Gateway.Token
	if token == "" {
		sendJSON(send, hello{OK: true, Version: ProtocolVersion})
		return true
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	var af authFrame
	if err := json.Unmarshal(data, &af); err != nil || !constantTimeEqual(af.Token, token) {
		sendJSON(send, authFailure{Error: "auth_failed", Code: 4001})
		return false
	}

	sendJSON(send, hello{OK: true, Version: ProtocolVersion})
	return true
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func wsWriteLoop(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-send:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// sendJSON marshals v and hands it to the connection's write loop. It
// blocks when the outbound channel is full, which is the mechanism by
// which a slow client exerts back-pressure on the event producer upstream.
func sendJSON(send chan<- []byte, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	send <- data
}

func sendFrame(send chan<- []byte, f wire.Frame) {
	sendJSON(send, f)
}
