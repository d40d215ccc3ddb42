// Package store provides storage backends for SafeSpeak.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/safehaven-ng/safespeak/internal/models"
	"github.com/safehaven-ng/safespeak/internal/util"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveUserProfile(u models.User) error {
	_, err := s.db.Exec(`
		INSERT INTO user_profiles (id, email, name, role, is_anonymous, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET email = $2, name = $3, role = $4, is_anonymous = $5, last_login = $7`,
		u.ID, nilIfEmpty(u.Email), nilIfEmpty(u.Name), string(u.Role), u.IsAnonymous, u.CreatedAt, u.LastLogin)
	if err != nil {
		slog.Error("PostgresStore SaveUserProfile failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to save user profile %s: %w", u.ID, err)
	}
	slog.Debug("PostgresStore SaveUserProfile succeeded", "userID", u.ID, "anonymous", u.IsAnonymous)
	return nil
}

func (s *PostgresStore) GetUserProfile(id string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT id, email, name, role, is_anonymous, created_at, last_login FROM user_profiles WHERE id = $1`, id)
	return scanUser(row)
}

func (s *PostgresStore) GetUserProfileByEmail(email string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT id, email, name, role, is_anonymous, created_at, last_login FROM user_profiles WHERE email = $1`, email)
	return scanUser(row)
}

func (s *PostgresStore) GetPreferences(userID string) (models.Preferences, error) {
	var p models.Preferences
	var fontSize string
	err := s.db.QueryRow(`SELECT dark_mode, font_size FROM user_preferences WHERE user_id = $1`, userID).Scan(&p.DarkMode, &fontSize)
	if err == sql.ErrNoRows {
		return models.DefaultPreferences(), nil
	}
	if err != nil {
		slog.Error("PostgresStore GetPreferences failed", "error", err, "userID", userID)
		return models.DefaultPreferences(), err
	}
	p.FontSize = models.FontSize(fontSize)
	return p, nil
}

func (s *PostgresStore) SavePreferences(userID string, p models.Preferences) error {
	_, err := s.db.Exec(`
		INSERT INTO user_preferences (user_id, dark_mode, font_size)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET dark_mode = $2, font_size = $3`,
		userID, p.DarkMode, string(p.FontSize))
	if err != nil {
		slog.Error("PostgresStore SavePreferences failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save preferences for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore SavePreferences succeeded", "userID", userID)
	return nil
}

func (s *PostgresStore) GetOrCreateSession(userID string) (*models.ChatSession, error) {
	var sess models.ChatSession
	err := s.db.QueryRow(`SELECT id, user_id, title, created_at, updated_at FROM chat_sessions WHERE user_id = $1 ORDER BY created_at LIMIT 1`, userID).
		Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if err == nil {
		return &sess, nil
	}
	if err != sql.ErrNoRows {
		slog.Error("PostgresStore GetOrCreateSession query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query session for %s: %w", userID, err)
	}

	now := time.Now()
	sess = models.ChatSession{ID: util.GenerateSessionID(), UserID: userID, Title: "Support Chat", CreatedAt: now, UpdatedAt: now}
	if _, err := s.db.Exec(`INSERT INTO chat_sessions (id, user_id, title, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.UserID, sess.Title, sess.CreatedAt, sess.UpdatedAt); err != nil {
		slog.Error("PostgresStore GetOrCreateSession insert failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to create session for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore GetOrCreateSession created new session", "userID", userID, "sessionID", sess.ID)
	return &sess, nil
}

func (s *PostgresStore) AddChatMessage(m models.ChatMessage) error {
	triggersJSON, err := marshalTriggers(m.TriggerWords)
	if err != nil {
		slog.Error("PostgresStore AddChatMessage trigger marshal failed", "error", err, "messageID", m.ID)
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO chat_messages (id, session_id, user_id, message, is_user, trigger_words, is_emergency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.SessionID, m.UserID, m.Message, m.IsUser, triggersJSON, m.IsEmergency, m.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AddChatMessage failed", "error", err, "sessionID", m.SessionID)
		return fmt.Errorf("failed to insert chat message for session %s: %w", m.SessionID, err)
	}
	slog.Debug("PostgresStore AddChatMessage succeeded", "sessionID", m.SessionID, "isUser", m.IsUser, "isEmergency", m.IsEmergency)
	return nil
}

func (s *PostgresStore) ListSessionMessages(sessionID string) ([]models.ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, user_id, message, is_user, trigger_words, is_emergency, created_at
		FROM chat_messages WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		slog.Error("PostgresStore ListSessionMessages query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			slog.Error("PostgresStore ListSessionMessages scan failed", "error", err, "sessionID", sessionID)
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListSessionMessages rows iteration failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to iterate chat message rows: %w", err)
	}
	slog.Debug("PostgresStore ListSessionMessages succeeded", "sessionID", sessionID, "count", len(msgs))
	return msgs, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
