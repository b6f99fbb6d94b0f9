package routing

import (
	"testing"

	"github.com/exoclaw/gateway/internal/wire"
)

func TestResolvePriorityOrder(t *testing.T) {
	bindings := []Binding{
		{AgentID: "peer-agent", Peer: "p1"},
		{AgentID: "guild-agent", Guild: "g1"},
		{AgentID: "team-agent", Team: "t1"},
		{AgentID: "account-agent", Account: "a1"},
		{AgentID: "channel-agent", Channel: "discord"},
	}
	r := New(bindings, "default-agent")

	cases := []struct {
		name string
		msg  wire.AgentMessage
		want string
		by   string
	}{
		{"peer wins over everything", wire.AgentMessage{Peer: "p1", Guild: "g1", Team: "t1", Account: "a1", Channel: "discord"}, "peer-agent", "peer"},
		{"guild wins without peer", wire.AgentMessage{Guild: "g1", Team: "t1", Account: "a1"}, "guild-agent", "guild"},
		{"team wins without peer/guild", wire.AgentMessage{Team: "t1", Account: "a1"}, "team-agent", "team"},
		{"account wins without peer/guild", wire.AgentMessage{Account: "a1", Channel: "discord"}, "account-agent", "account"},
		{"channel matches bare", wire.AgentMessage{Channel: "discord"}, "channel-agent", "channel"},
		{"default fallback", wire.AgentMessage{Channel: "unknown"}, "default-agent", "default"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := r.Resolve(tc.msg)
			if got.AgentID != tc.want || got.MatchedBy != tc.by {
				t.Errorf("Resolve(%+v) = {%s,%s}, want {%s,%s}", tc.msg, got.AgentID, got.MatchedBy, tc.want, tc.by)
			}
		})
	}
}

func TestSessionKeyFormatAndPeerDefault(t *testing.T) {
	r := New(nil, "default-agent")
	res := r.Resolve(wire.AgentMessage{Channel: "discord", Account: "acct1"})
	if res.SessionKey != "default-agent:discord:acct1:main" {
		t.Errorf("SessionKey = %q", res.SessionKey)
	}
}

func TestSessionCountDedupes(t *testing.T) {
	r := New(nil, "default-agent")
	r.Resolve(wire.AgentMessage{Channel: "discord", Account: "a"})
	r.Resolve(wire.AgentMessage{Channel: "discord", Account: "a"})
	r.Resolve(wire.AgentMessage{Channel: "discord", Account: "b"})
	if r.SessionCount() != 2 {
		t.Errorf("SessionCount() = %d, want 2", r.SessionCount())
	}
}
