package wizard

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxIdle is how long a wizard may sit untouched before the periodic
// sweep discards its draft.
const DefaultMaxIdle = 30 * time.Minute

// Manager is the in-memory registry of live wizard sessions. Drafts live only
// here; discarding a session is the only way its contents are destroyed.
type Manager struct {
	mu      sync.Mutex
	wizards map[string]*Wizard
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{wizards: make(map[string]*Wizard)}
}

// Create starts a new wizard session for userID and returns it. A user may
// hold several sessions; each has its own draft.
func (m *Manager) Create(userID string) *Wizard {
	w := New(uuid.NewString(), userID)
	m.mu.Lock()
	m.wizards[w.ID] = w
	m.mu.Unlock()
	slog.Info("wizard.Manager.Create: session started", "wizardID", w.ID, "userID", userID)
	return w
}

// Get returns the wizard with the given id, or nil when it does not exist or
// has been discarded.
func (m *Manager) Get(id string) *Wizard {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wizards[id]
}

// Discard removes one session and its draft. Idempotent.
func (m *Manager) Discard(id string) {
	m.mu.Lock()
	_, ok := m.wizards[id]
	delete(m.wizards, id)
	m.mu.Unlock()
	if ok {
		slog.Info("wizard.Manager.Discard: session discarded", "wizardID", id)
	}
}

// DiscardUser removes every session belonging to userID and reports how many
// were dropped. Used by the quick-exit flow.
func (m *Manager) DiscardUser(userID string) int {
	m.mu.Lock()
	n := 0
	for id, w := range m.wizards {
		if w.UserID == userID {
			delete(m.wizards, id)
			n++
		}
	}
	m.mu.Unlock()
	if n > 0 {
		slog.Info("wizard.Manager.DiscardUser: sessions discarded", "userID", userID, "count", n)
	}
	return n
}

// Sweep discards sessions idle for longer than maxIdle and reports how many
// were dropped. Invoked periodically by the scheduler.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.Lock()
	n := 0
	for id, w := range m.wizards {
		w.mu.Lock()
		idle := w.lastActive.Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(m.wizards, id)
			n++
		}
	}
	m.mu.Unlock()
	if n > 0 {
		slog.Info("wizard.Manager.Sweep: idle sessions discarded", "count", n)
	}
	return n
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.wizards)
}
