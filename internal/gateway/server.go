// Package gateway wires the routing, session, memory, usage, provider,
// agentloop, and plugin packages into the duplex WebSocket transport and
// HTTP surface the outside world actually talks to: /ws for the RPC
// demultiplexer, /webhook/{channel} for channel-adapter plugins, /health,
// and /metrics.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/exoclaw/gateway/internal/config"
	"github.com/exoclaw/gateway/internal/memory"
	"github.com/exoclaw/gateway/internal/plugin"
	"github.com/exoclaw/gateway/internal/provider"
	"github.com/exoclaw/gateway/internal/routing"
	"github.com/exoclaw/gateway/internal/session"
	"github.com/exoclaw/gateway/internal/tracing"
	"github.com/exoclaw/gateway/internal/usage"
)

// ProtocolVersion is the hello frame's version string and appears in the
// status RPC's result.
const ProtocolVersion = "1"

// Server is the assembled gateway: every shared-owner package the transport
// dispatches into, plus the bind/auth configuration that governs startup.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	router *routing.Router
	store  *session.Store
	locker *session.Locker
	memory *memory.Engine
	meter  *usage.Meter
	host   *plugin.Host

	agents    map[string]config.AgentConfig
	providers map[string]provider.Provider

	startTime time.Time

	httpServer *http.Server
}

// Dependencies bundles the shared-owner components a Server is built from,
// so New never has to construct them itself.
type Dependencies struct {
	Router *routing.Router
	Store  *session.Store
	Locker *session.Locker
	Memory *memory.Engine
	Meter  *usage.Meter
	Host   *plugin.Host

	// Providers maps a provider name ("anthropic", "openai") to the
	// adapter instance used to stream completions for it.
	Providers map[string]provider.Provider
}

// New builds a Server from cfg and deps, enforcing the bind-address/auth
// requirement of §4.8: a non-loopback bind address without a configured
// token is a fatal startup error.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !isLoopback(cfg.Gateway.Bind) && strings.TrimSpace(cfg.Gateway.Token) == "" {
		return nil, fmt.Errorf("gateway: non-loopback bind %q requires gateway.token to be set", cfg.Gateway.Bind)
	}

	agents := make(map[string]config.AgentConfig, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents[a.ID] = a
	}

	return &Server{
		cfg:       cfg,
		logger:    logger,
		router:    deps.Router,
		store:     deps.Store,
		locker:    deps.Locker,
		memory:    deps.Memory,
		meter:     deps.Meter,
		host:      deps.Host,
		agents:    agents,
		providers: deps.Providers,
		startTime: time.Now(),
	}, nil
}

func isLoopback(bind string) bool {
	bind = strings.TrimSpace(bind)
	if bind == "" || bind == "localhost" {
		return true
	}
	ip := net.ParseIP(bind)
	return ip != nil && ip.IsLoopback()
}

// Mux builds the HTTP handler exposing /ws, /webhook/{channel}, /health,
// and /metrics.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/ws", s.newWSHandler())
	mux.HandleFunc("/webhook/", s.handleWebhook)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ListenAndServe binds addr (host:port derived from cfg.Gateway) and serves
// until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Bind, s.cfg.Gateway.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownDone := tracing.Configure("exoclaw-gateway")
	defer func() { _ = shutdownDone(context.Background()) }()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("gateway listening", "addr", addr)
	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
