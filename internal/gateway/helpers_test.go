package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider emits a fixed event batch per call, in call order.
type fakeProvider struct {
	batches [][]wire.StreamEvent
	calls   int
}

func (p *fakeProvider) Stream(ctx context.Context, req provider.Request, ch chan<- wire.StreamEvent) error {
	batch := p.batches[p.calls]
	p.calls++
	for _, e := range batch {
		ch <- e
	}
	return nil
}

// newTestServer builds a Server with in-memory dependencies and a single
// agent whose provider is prov, registered in s.providers under
// agent.Provider so the agent resolves to it.
func newTestServer(t *testing.T, agent config.AgentConfig, prov provider.Provider, bindings []routing.Binding, token, bind string) *Server {
	t.Helper()

	cfg := &config.Config{
		Gateway: config.GatewayConfig{Bind: bind, Port: 7200, Token: token},
		Agents:  []config.AgentConfig{agent},
		Memory:  config.MemoryConfig{EpisodicWindow: 5},
	}

	deps := gatewayDeps(agent, prov, bindings)
	srv, err := New(cfg, deps, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return srv
}

func gatewayDeps(agent config.AgentConfig, prov provider.Provider, bindings []routing.Binding) Dependencies {
	return Dependencies{
		Router:    routing.New(bindings, agent.ID),
		Store:     session.NewStore(),
		Locker:    session.NewLocker(2 * time.Second),
		Memory:    memory.NewEngine(5, false),
		Meter:     usage.NewMeter(usage.Limits{}),
		Host:      plugin.NewHost(),
		Providers: map[string]provider.Provider{agent.Provider: prov},
	}
}

func mustJSON(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
