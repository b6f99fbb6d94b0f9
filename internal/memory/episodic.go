// Package memory implements the three-layer memory engine: a sliding
// episodic window, a superseding semantic fact store, and a hot-reloading
// soul document per agent.
package memory

import (
	"sync"

	"github.com/exoclaw/gateway/internal/wire"
)

// Episodic is a per-session sliding window of the most recent messages.
// WindowTurns counts conversational turns; each turn is a user message plus
// its assistant reply, so the window holds at most WindowTurns*2 messages.
type Episodic struct {
	mu          sync.Mutex
	windowTurns int
	sessions    map[string][]wire.Message
}

// NewEpisodic builds an Episodic memory with the given window size in
// turns.
func NewEpisodic(windowTurns int) *Episodic {
	return &Episodic{windowTurns: windowTurns, sessions: make(map[string][]wire.Message)}
}

// Append adds msg to key's history, trimming from the head once the window
// is exceeded.
func (e *Episodic) Append(key string, msg wire.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	msgs := append(e.sessions[key], msg)
	limit := e.windowTurns * 2
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	e.sessions[key] = msgs
}

// Recent returns the last n messages for key, oldest first.
func (e *Episodic) Recent(key string, n int) []wire.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	msgs := e.sessions[key]
	if n <= 0 || n >= len(msgs) {
		out := make([]wire.Message, len(msgs))
		copy(out, msgs)
		return out
	}
	out := make([]wire.Message, n)
	copy(out, msgs[len(msgs)-n:])
	return out
}

// All returns the full retained history for key.
func (e *Episodic) All(key string) []wire.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	msgs := e.sessions[key]
	out := make([]wire.Message, len(msgs))
	copy(out, msgs)
	return out
}

// WindowSize returns the configured window size in turns.
func (e *Episodic) WindowSize() int {
	return e.windowTurns
}
