package session

import (
	"sync"
	"time"

	"github.com/exoclaw/gateway/internal/wire"
)

// Session is the durable record of one conversation, keyed by session key.
type Session struct {
	Key          string
	AgentID      string
	Messages     []wire.Message
	CreatedAt    time.Time
	MessageCount int
}

// Store holds all active sessions in memory. Per the gateway's Non-goals,
// there is no durable backing store; a process restart loses session state.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore builds an empty in-memory session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for key, creating it (bound to agentID)
// if this is the first time key has been seen.
func (s *Store) GetOrCreate(key, agentID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		return sess
	}
	sess := &Session{Key: key, AgentID: agentID, CreatedAt: time.Now()}
	s.sessions[key] = sess
	return sess
}

// Append adds msg to the session's durable log.
func (s *Store) Append(key string, msg wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return
	}
	sess.Messages = append(sess.Messages, msg)
	sess.MessageCount++
}

// Get returns the session for key, if any.
func (s *Store) Get(key string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	return sess, ok
}

// Count returns the number of sessions currently held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
