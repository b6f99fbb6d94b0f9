// Package routing resolves an incoming channel message to the agent and
// session that should handle it, following a fixed specificity order:
// peer, then guild, then team, then account, then channel, then the
// configured default agent.
package routing

import (
	"fmt"
	"sync"

	"github.com/exoclaw/gateway/internal/wire"
)

// Binding associates an agent with one or more discriminating fields. Each
// priority level in Resolve compares a single field (peer, guild, team,
// account, or channel); the account level only considers bindings with no
// peer or guild set, and the channel level only bindings with no account or
// peer set. Other fields a binding sets are not compared.
type Binding struct {
	AgentID string
	Channel string
	Account string
	Peer    string
	Guild   string
	Team    string
}

// Result is the outcome of resolving a message to an agent and session.
type Result struct {
	AgentID    string
	SessionKey string
	MatchedBy  string
}

// Router resolves incoming messages to agents and tracks active session
// keys. It is safe for concurrent use.
type Router struct {
	mu         sync.RWMutex
	bindings   []Binding
	sessions   map[string]struct{}
	defaultAgt string
}

// New builds a Router with the given bindings, evaluated in order for
// channel/account fallback matches, and a default agent used when nothing
// else matches.
func New(bindings []Binding, defaultAgent string) *Router {
	return &Router{
		bindings:   bindings,
		sessions:   make(map[string]struct{}),
		defaultAgt: defaultAgent,
	}
}

// Resolve determines which agent should handle msg and the session key that
// identifies the conversation, in priority order:
//  1. peer_id match
//  2. guild_id match
//  3. team_id match
//  4. account_id match (only bindings with no peer/guild set)
//  5. channel match (only bindings with no account/peer set)
//  6. the configured default agent
func (r *Router) Resolve(msg wire.AgentMessage) Result {
	peer := msg.Peer
	if peer == "" {
		peer = "main"
	}

	agentID, matchedBy := r.match(msg)

	key := fmt.Sprintf("%s:%s:%s:%s", agentID, msg.Channel, msg.Account, peer)

	r.mu.Lock()
	r.sessions[key] = struct{}{}
	r.mu.Unlock()

	return Result{AgentID: agentID, SessionKey: key, MatchedBy: matchedBy}
}

func (r *Router) match(msg wire.AgentMessage) (agentID string, matchedBy string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if msg.Peer != "" {
		for _, b := range r.bindings {
			if b.Peer != "" && b.Peer == msg.Peer {
				return b.AgentID, "peer"
			}
		}
	}
	if msg.Guild != "" {
		for _, b := range r.bindings {
			if b.Guild != "" && b.Guild == msg.Guild {
				return b.AgentID, "guild"
			}
		}
	}
	if msg.Team != "" {
		for _, b := range r.bindings {
			if b.Team != "" && b.Team == msg.Team {
				return b.AgentID, "team"
			}
		}
	}
	if msg.Account != "" {
		for _, b := range r.bindings {
			if b.Account != "" && b.Account == msg.Account && b.Peer == "" && b.Guild == "" {
				return b.AgentID, "account"
			}
		}
	}
	if msg.Channel != "" {
		for _, b := range r.bindings {
			if b.Channel != "" && b.Channel == msg.Channel && b.Account == "" && b.Peer == "" {
				return b.AgentID, "channel"
			}
		}
	}
	return r.defaultAgt, "default"
}

// SessionCount returns the number of distinct session keys observed so far.
func (r *Router) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
