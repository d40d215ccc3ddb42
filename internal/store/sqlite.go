// Package store provides storage backends for SafeSpeak.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/safehaven-ng/safespeak/internal/models"
	"github.com/safehaven-ng/safespeak/internal/util"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveUserProfile(u models.User) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO user_profiles (id, email, name, role, is_anonymous, created_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, nilIfEmpty(u.Email), nilIfEmpty(u.Name), string(u.Role), u.IsAnonymous, u.CreatedAt, u.LastLogin)
	if err != nil {
		slog.Error("SQLiteStore SaveUserProfile failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to save user profile %s: %w", u.ID, err)
	}
	slog.Debug("SQLiteStore SaveUserProfile succeeded", "userID", u.ID, "anonymous", u.IsAnonymous)
	return nil
}

func (s *SQLiteStore) GetUserProfile(id string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT id, email, name, role, is_anonymous, created_at, last_login FROM user_profiles WHERE id = ?`, id)
	return scanUser(row)
}

func (s *SQLiteStore) GetUserProfileByEmail(email string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT id, email, name, role, is_anonymous, created_at, last_login FROM user_profiles WHERE email = ?`, email)
	return scanUser(row)
}

func (s *SQLiteStore) GetPreferences(userID string) (models.Preferences, error) {
	var p models.Preferences
	var fontSize string
	err := s.db.QueryRow(`SELECT dark_mode, font_size FROM user_preferences WHERE user_id = ?`, userID).Scan(&p.DarkMode, &fontSize)
	if err == sql.ErrNoRows {
		return models.DefaultPreferences(), nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetPreferences failed", "error", err, "userID", userID)
		return models.DefaultPreferences(), err
	}
	p.FontSize = models.FontSize(fontSize)
	return p, nil
}

func (s *SQLiteStore) SavePreferences(userID string, p models.Preferences) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO user_preferences (user_id, dark_mode, font_size)
		VALUES (?, ?, ?)`, userID, p.DarkMode, string(p.FontSize))
	if err != nil {
		slog.Error("SQLiteStore SavePreferences failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save preferences for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore SavePreferences succeeded", "userID", userID)
	return nil
}

func (s *SQLiteStore) GetOrCreateSession(userID string) (*models.ChatSession, error) {
	var sess models.ChatSession
	err := s.db.QueryRow(`SELECT id, user_id, title, created_at, updated_at FROM chat_sessions WHERE user_id = ? ORDER BY created_at LIMIT 1`, userID).
		Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if err == nil {
		return &sess, nil
	}
	if err != sql.ErrNoRows {
		slog.Error("SQLiteStore GetOrCreateSession query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query session for %s: %w", userID, err)
	}

	now := time.Now()
	sess = models.ChatSession{ID: util.GenerateSessionID(), UserID: userID, Title: "Support Chat", CreatedAt: now, UpdatedAt: now}
	if _, err := s.db.Exec(`INSERT INTO chat_sessions (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Title, sess.CreatedAt, sess.UpdatedAt); err != nil {
		slog.Error("SQLiteStore GetOrCreateSession insert failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to create session for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore GetOrCreateSession created new session", "userID", userID, "sessionID", sess.ID)
	return &sess, nil
}

func (s *SQLiteStore) AddChatMessage(m models.ChatMessage) error {
	triggersJSON, err := marshalTriggers(m.TriggerWords)
	if err != nil {
		slog.Error("SQLiteStore AddChatMessage trigger marshal failed", "error", err, "messageID", m.ID)
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO chat_messages (id, session_id, user_id, message, is_user, trigger_words, is_emergency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.UserID, m.Message, m.IsUser, triggersJSON, m.IsEmergency, m.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AddChatMessage failed", "error", err, "sessionID", m.SessionID)
		return fmt.Errorf("failed to insert chat message for session %s: %w", m.SessionID, err)
	}
	slog.Debug("SQLiteStore AddChatMessage succeeded", "sessionID", m.SessionID, "isUser", m.IsUser, "isEmergency", m.IsEmergency)
	return nil
}

func (s *SQLiteStore) ListSessionMessages(sessionID string) ([]models.ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, user_id, message, is_user, trigger_words, is_emergency, created_at
		FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore ListSessionMessages query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			slog.Error("SQLiteStore ListSessionMessages scan failed", "error", err, "sessionID", sessionID)
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListSessionMessages rows iteration failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to iterate chat message rows: %w", err)
	}
	slog.Debug("SQLiteStore ListSessionMessages succeeded", "sessionID", sessionID, "count", len(msgs))
	return msgs, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// marshalTriggers encodes trigger words as JSON for a nullable text column.
func marshalTriggers(triggers []string) (interface{}, error) {
	if len(triggers) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(triggers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger words: %w", err)
	}
	return string(b), nil
}
