package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/safehaven-ng/safespeak/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanUser scans a user profile from a single sql.Row. A missing row maps to
// (nil, nil) so callers can distinguish absence from failure.
func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var email, name sql.NullString
	var role string
	err := row.Scan(&u.ID, &email, &name, &role, &u.IsAnonymous, &u.CreatedAt, &u.LastLogin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user profile failed: %w", err)
	}
	u.Email = email.String
	u.Name = name.String
	u.Role = models.UserRole(role)
	return &u, nil
}

// scanChatMessage scans a chat message from sql.Rows, decoding the optional
// trigger-word JSON column.
func scanChatMessage(rows *sql.Rows) (models.ChatMessage, error) {
	var m models.ChatMessage
	var triggersJSON sql.NullString
	err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Message, &m.IsUser, &triggersJSON, &m.IsEmergency, &m.Timestamp)
	if err != nil {
		return m, fmt.Errorf("scan chat message failed: %w", err)
	}
	if triggersJSON.Valid && triggersJSON.String != "" {
		if err := json.Unmarshal([]byte(triggersJSON.String), &m.TriggerWords); err != nil {
			return m, fmt.Errorf("failed to unmarshal trigger words: %w", err)
		}
	}
	return m, nil
}
