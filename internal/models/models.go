// Package models defines the core data structures for SafeSpeak.
//
// It includes types for users, chat sessions, chat messages, and user
// preferences, which are shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// UserRole identifies the kind of account behind a resolved identity.
type UserRole string

const (
	// RoleVictim is the default role for people seeking support.
	RoleVictim UserRole = "victim"
	// RoleNGO identifies partner organization accounts.
	RoleNGO UserRole = "ngo"
	// RoleEmergency identifies emergency responder accounts.
	RoleEmergency UserRole = "emergency"
)

// IsValidUserRole checks if the given role is supported.
func IsValidUserRole(r UserRole) bool {
	switch r {
	case RoleVictim, RoleNGO, RoleEmergency:
		return true
	default:
		return false
	}
}

// FontSize enumerates the supported accessibility font sizes.
type FontSize string

const (
	FontSizeSmall  FontSize = "small"
	FontSizeMedium FontSize = "medium"
	FontSizeLarge  FontSize = "large"
)

// IsValidFontSize checks if the given font size is supported.
func IsValidFontSize(f FontSize) bool {
	switch f {
	case FontSizeSmall, FontSizeMedium, FontSizeLarge:
		return true
	default:
		return false
	}
}

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for a chat message body
	MaxMessageLength = 4096
	// MaxEmailLength defines the maximum allowed length for an email address
	MaxEmailLength = 254
	// MaxNameLength defines the maximum allowed length for a display name
	MaxNameLength = 200
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
	ErrEmptyEmail      = errors.New("email cannot be empty")
	ErrEmailTooLong    = errors.New("email exceeds maximum length")
	ErrNameTooLong     = errors.New("name exceeds maximum length")
	ErrInvalidRole     = errors.New("invalid user role")
	ErrInvalidFontSize = errors.New("invalid font size")
	ErrMissingIdentity = errors.New("a resolved identity is required")
)

// User represents a resolved identity, anonymous or named.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name,omitempty"`
	Role        UserRole  `json:"role"`
	IsAnonymous bool      `json:"is_anonymous"`
	CreatedAt   time.Time `json:"created_at"`
	LastLogin   time.Time `json:"last_login"`
}

// Validate checks the invariants every persisted or acting identity must
// hold: a non-empty ID and a supported role.
func (u *User) Validate() error {
	if u.ID == "" {
		return ErrMissingIdentity
	}
	if !IsValidUserRole(u.Role) {
		return ErrInvalidRole
	}
	return nil
}

// ChatSession represents one conversation's identifiers. The ordered message
// history is stored separately, keyed by the session ID.
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one turn of a conversation, user or assistant authored.
// Messages are append-only within a session.
type ChatMessage struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	Message      string    `json:"message"`
	IsUser       bool      `json:"is_user"`
	TriggerWords []string  `json:"trigger_words,omitempty"`
	IsEmergency  bool      `json:"is_emergency"`
	Timestamp    time.Time `json:"timestamp"`
}

// Preferences is the subset of user state that survives restarts. Identity
// tokens and chat drafts are deliberately excluded from this struct; anything
// not listed here is session-scoped and lost on quick exit.
type Preferences struct {
	DarkMode bool     `json:"dark_mode"`
	FontSize FontSize `json:"font_size"`
}

// DefaultPreferences returns the preferences applied to a new account.
func DefaultPreferences() Preferences {
	return Preferences{DarkMode: false, FontSize: FontSizeMedium}
}

// Validate checks a Preferences value before it is persisted.
func (p *Preferences) Validate() error {
	if !IsValidFontSize(p.FontSize) {
		return ErrInvalidFontSize
	}
	return nil
}

// ChatMessageRequest is the inbound payload for one conversation turn.
type ChatMessageRequest struct {
	Message string `json:"message"`
}

// Validate performs validation on a ChatMessageRequest.
func (r *ChatMessageRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// SignUpRequest is the inbound payload for named account creation.
type SignUpRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Validate performs validation on a SignUpRequest.
func (r *SignUpRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return ErrEmptyEmail
	}
	if len(r.Email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	if len(r.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}
