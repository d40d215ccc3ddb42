// Package flow provides the conversation orchestration for SafeSpeak chat.
package flow

import (
	"sync"
	"time"

	"github.com/safehaven-ng/safespeak/internal/models"
)

// Session is one conversation's in-memory state: the ordered message list and
// the "assistant is composing" flag. Both are exclusively owned by the
// session; all mutation goes through its mutex. Messages are append-only
// within a session's lifetime.
type Session struct {
	ID     string
	UserID string

	mu         sync.Mutex
	messages   []models.ChatMessage
	composing  bool
	closed     bool
	lastActive time.Time
}

// Messages returns a copy of the session's message list.
func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Composing reports whether a turn is currently in flight.
func (s *Session) Composing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.composing
}

// beginTurn atomically claims the composing flag. It reports false when a
// turn is already in flight or the session is closed.
func (s *Session) beginTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.composing || s.closed {
		return false
	}
	s.composing = true
	s.lastActive = time.Now()
	return true
}

// endTurn releases the composing flag. Safe to call on a closed session.
func (s *Session) endTurn() {
	s.mu.Lock()
	s.composing = false
	s.mu.Unlock()
}

// append adds a message to the in-memory list. It reports false when the
// session has been closed, in which case the message is discarded; a late
// generation result must never land in a torn-down session.
func (s *Session) append(m models.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.messages = append(s.messages, m)
	s.lastActive = time.Now()
	return true
}

// idleSince reports whether the session has been inactive since before the
// cutoff. A session with a turn in flight is never idle.
func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.composing && s.lastActive.Before(cutoff)
}

// close marks the session closed and drops its in-memory state.
func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.messages = nil
	s.mu.Unlock()
}
