// Package store provides storage backends for SafeSpeak.
//
// It persists user profiles, preferences, chat sessions, and chat message
// transcripts. Three backends are available: an in-memory store for tests,
// SQLite for single-node deployments, and PostgreSQL.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/safehaven-ng/safespeak/internal/models"
	"github.com/safehaven-ng/safespeak/internal/util"
)

// Store defines the persistence operations shared by all backends.
//
// Message writes are append-only. Callers are expected to treat write
// failures as non-fatal (log and continue) and read failures as an empty
// history; the store itself never papers over an error.
type Store interface {
	// SaveUserProfile inserts or updates a user profile.
	SaveUserProfile(u models.User) error

	// GetUserProfile returns the profile for id, or nil if absent.
	GetUserProfile(id string) (*models.User, error)

	// GetUserProfileByEmail returns the profile for email, or nil if absent.
	GetUserProfileByEmail(email string) (*models.User, error)

	// GetPreferences returns the persisted preferences for a user. Users
	// without saved preferences get the defaults.
	GetPreferences(userID string) (models.Preferences, error)

	// SavePreferences persists the preference subset for a user.
	SavePreferences(userID string, p models.Preferences) error

	// GetOrCreateSession returns the user's chat session, creating one if
	// none exists yet.
	GetOrCreateSession(userID string) (*models.ChatSession, error)

	// AddChatMessage appends one message record to a session transcript.
	AddChatMessage(m models.ChatMessage) error

	// ListSessionMessages returns all messages for a session ordered by
	// creation time ascending.
	ListSessionMessages(sessionID string) ([]models.ChatMessage, error)

	// Close releases the underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a mutex-guarded in-memory Store used in tests and as the
// fallback when no DSN is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	prefs    map[string]models.Preferences
	sessions map[string]models.ChatSession // keyed by user ID
	messages map[string][]models.ChatMessage
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:    make(map[string]models.User),
		prefs:    make(map[string]models.Preferences),
		sessions: make(map[string]models.ChatSession),
		messages: make(map[string][]models.ChatMessage),
	}
}

func (s *InMemoryStore) SaveUserProfile(u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *InMemoryStore) GetUserProfile(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *InMemoryStore) GetUserProfileByEmail(email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email != "" && u.Email == email {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) GetPreferences(userID string) (models.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.prefs[userID]; ok {
		return p, nil
	}
	return models.DefaultPreferences(), nil
}

func (s *InMemoryStore) SavePreferences(userID string, p models.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[userID] = p
	return nil
}

func (s *InMemoryStore) GetOrCreateSession(userID string) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return &sess, nil
	}
	now := time.Now()
	sess := models.ChatSession{
		ID:        util.GenerateSessionID(),
		UserID:    userID,
		Title:     "Support Chat",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[userID] = sess
	return &sess, nil
}

func (s *InMemoryStore) AddChatMessage(m models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.SessionID] = append(s.messages[m.SessionID], m)
	return nil
}

func (s *InMemoryStore) ListSessionMessages(sessionID string) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]models.ChatMessage, len(s.messages[sessionID]))
	copy(msgs, s.messages[sessionID])
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	return msgs, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
