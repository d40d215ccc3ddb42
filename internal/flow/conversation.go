// Package flow provides the conversation orchestration for SafeSpeak chat.
//
// A Conversation coordinates one turn at a time per session: classify the
// inbound text, record it, call the generation client with bounded history,
// record the reply, and degrade to a fixed safety message when generation
// fails. The user always receives a reply-shaped message; raw generation
// errors never reach them.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safehaven-ng/safespeak/internal/alert"
	"github.com/safehaven-ng/safespeak/internal/classifier"
	"github.com/safehaven-ng/safespeak/internal/genai"
	"github.com/safehaven-ng/safespeak/internal/models"
	"github.com/safehaven-ng/safespeak/internal/store"
)

// HistoryWindow is the number of most recent messages (inclusive of the
// just-added user message) handed to the generation client.
const HistoryWindow = 10

// DefaultMaxIdle is how long a cached session may sit untouched before a
// sweep evicts it. The persisted transcript is unaffected; the next message
// simply reopens the session.
const DefaultMaxIdle = 30 * time.Minute

// ErrTurnInFlight is returned when a message arrives while the assistant is
// still composing a reply for the same session.
var ErrTurnInFlight = errors.New("a turn is already in flight for this session")

// ErrSessionClosed is returned when a turn's session was torn down while the
// generation call was pending; the late result is discarded.
var ErrSessionClosed = errors.New("session closed")

// WelcomeMessage is shown when a conversation is opened with no history.
const WelcomeMessage = "Hello, I'm SafeSpeak, your confidential support assistant. I'm here to listen and help you explore your options in a safe, judgment-free space. Are you in a safe place to talk right now?"

// FallbackMessage is the fixed reply substituted when generation fails.
var FallbackMessage = fmt.Sprintf(
	"I'm here to support you, but I'm having trouble connecting right now. If this is an emergency, please call %s or the %s at %s. Your safety is the most important thing.",
	models.EmergencyServicesNumber, models.HotlineName, models.HotlineNumber)

// Conversation orchestrates chat turns across sessions.
type Conversation struct {
	st       store.Store
	gen      genai.ClientInterface
	notifier alert.Notifier

	mu       sync.Mutex
	sessions map[string]*Session // keyed by user ID
}

// NewConversation creates a conversation orchestrator with its dependencies.
// A nil notifier disables escalation.
func NewConversation(st store.Store, gen genai.ClientInterface, notifier alert.Notifier) *Conversation {
	slog.Debug("flow.NewConversation: creating orchestrator", "hasNotifier", notifier != nil)
	if notifier == nil {
		notifier = alert.NoopNotifier{}
	}
	return &Conversation{
		st:       st,
		gen:      gen,
		notifier: notifier,
		sessions: make(map[string]*Session),
	}
}

// OpenSession returns the user's active session, creating it from the
// persisted transcript if needed. A transcript read failure degrades to a
// fresh session rather than blocking the conversation. New sessions get the
// welcome message.
func (c *Conversation) OpenSession(ctx context.Context, user models.User) (*Session, error) {
	if err := user.Validate(); err != nil {
		slog.Warn("flow.OpenSession: rejected unresolved identity", "error", err)
		return nil, err
	}

	c.mu.Lock()
	if sess, ok := c.sessions[user.ID]; ok {
		c.mu.Unlock()
		return sess, nil
	}
	c.mu.Unlock()

	stored, err := c.st.GetOrCreateSession(user.ID)
	if err != nil {
		slog.Error("flow.OpenSession: failed to get or create session", "error", err, "userID", user.ID)
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	history, err := c.st.ListSessionMessages(stored.ID)
	if err != nil {
		slog.Warn("flow.OpenSession: history read failed, starting fresh", "error", err, "sessionID", stored.ID)
		history = nil
	}

	sess := &Session{ID: stored.ID, UserID: user.ID, messages: history, lastActive: time.Now()}

	var welcome models.ChatMessage
	if len(history) == 0 {
		welcome = models.ChatMessage{
			ID:        uuid.NewString(),
			SessionID: sess.ID,
			UserID:    user.ID,
			Message:   WelcomeMessage,
			IsUser:    false,
			Timestamp: time.Now(),
		}
		sess.append(welcome)
	}

	c.mu.Lock()
	// Another goroutine may have opened the session concurrently; keep the
	// first one registered and discard this one, welcome record included, so
	// the transcript never gets a duplicate greeting.
	if existing, ok := c.sessions[user.ID]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.sessions[user.ID] = sess
	c.mu.Unlock()

	if welcome.ID != "" {
		c.persist(welcome)
	}

	slog.Info("flow.OpenSession: session opened", "userID", user.ID, "sessionID", sess.ID, "historyLen", len(history))
	return sess, nil
}

// ProcessMessage runs one conversation turn and returns the two appended
// records: the user message and the assistant reply (genuine or fallback).
// A second submission while composing is rejected with ErrTurnInFlight.
func (c *Conversation) ProcessMessage(ctx context.Context, sess *Session, text string) (models.ChatMessage, models.ChatMessage, error) {
	if !sess.beginTurn() {
		slog.Warn("flow.ProcessMessage: turn rejected", "sessionID", sess.ID, "composing", sess.Composing())
		return models.ChatMessage{}, models.ChatMessage{}, ErrTurnInFlight
	}
	defer sess.endTurn()

	triggers := classifier.Classify(text)
	isEmergency := len(triggers) > 0

	userMsg := models.ChatMessage{
		ID:           uuid.NewString(),
		SessionID:    sess.ID,
		UserID:       sess.UserID,
		Message:      text,
		IsUser:       true,
		TriggerWords: triggers,
		IsEmergency:  isEmergency,
		Timestamp:    time.Now(),
	}
	if !sess.append(userMsg) {
		return models.ChatMessage{}, models.ChatMessage{}, ErrSessionClosed
	}
	c.persist(userMsg)

	if isEmergency {
		if err := c.notifier.NotifyEmergency(ctx, sess.UserID, triggers); err != nil {
			// Escalation is best-effort and must not disturb the turn.
			slog.Warn("flow.ProcessMessage: emergency notification failed", "error", err, "sessionID", sess.ID)
		}
	}

	window := buildContext(sess.Messages())
	slog.Debug("flow.ProcessMessage: generating reply", "sessionID", sess.ID, "windowLen", len(window), "triggers", len(triggers))

	reply, err := c.gen.GenerateResponse(ctx, text, triggers, window)

	var botMsg models.ChatMessage
	if err != nil {
		slog.Error("flow.ProcessMessage: generation failed, substituting fallback", "error", err, "sessionID", sess.ID)
		botMsg = models.ChatMessage{
			ID:          uuid.NewString(),
			SessionID:   sess.ID,
			UserID:      sess.UserID,
			Message:     FallbackMessage,
			IsUser:      false,
			IsEmergency: true,
			Timestamp:   time.Now(),
		}
	} else {
		// The emergency flag on the assistant turn mirrors the user's
		// trigger detection, not the reply content.
		botMsg = models.ChatMessage{
			ID:          uuid.NewString(),
			SessionID:   sess.ID,
			UserID:      sess.UserID,
			Message:     reply,
			IsUser:      false,
			IsEmergency: isEmergency,
			Timestamp:   time.Now(),
		}
	}

	if !sess.append(botMsg) {
		slog.Warn("flow.ProcessMessage: session closed mid-turn, discarding reply", "sessionID", sess.ID)
		return models.ChatMessage{}, models.ChatMessage{}, ErrSessionClosed
	}
	c.persist(botMsg)

	slog.Info("flow.ProcessMessage: turn complete", "sessionID", sess.ID, "emergency", botMsg.IsEmergency, "fallback", err != nil)
	return userMsg, botMsg, nil
}

// CloseSession tears down a user's in-memory session. The persisted
// transcript is untouched. Idempotent.
func (c *Conversation) CloseSession(userID string) {
	c.mu.Lock()
	sess, ok := c.sessions[userID]
	if ok {
		delete(c.sessions, userID)
	}
	c.mu.Unlock()
	if ok {
		sess.close()
		slog.Info("flow.CloseSession: session closed", "userID", userID, "sessionID", sess.ID)
	}
}

// Sweep evicts sessions idle since before maxIdle ago and reports how many
// were removed. Sessions with a turn in flight are left alone.
func (c *Conversation) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	c.mu.Lock()
	var idle []*Session
	for userID, sess := range c.sessions {
		if sess.idleSince(cutoff) {
			idle = append(idle, sess)
			delete(c.sessions, userID)
		}
	}
	c.mu.Unlock()

	for _, sess := range idle {
		sess.close()
	}
	if len(idle) > 0 {
		slog.Info("flow.Sweep: evicted idle sessions", "count", len(idle))
	}
	return len(idle)
}

// History returns the persisted transcript for a user's session, oldest
// first. A read failure degrades to an empty history.
func (c *Conversation) History(ctx context.Context, userID string) []models.ChatMessage {
	stored, err := c.st.GetOrCreateSession(userID)
	if err != nil {
		slog.Warn("flow.History: session lookup failed, returning empty history", "error", err, "userID", userID)
		return nil
	}
	msgs, err := c.st.ListSessionMessages(stored.ID)
	if err != nil {
		slog.Warn("flow.History: transcript read failed, returning empty history", "error", err, "sessionID", stored.ID)
		return nil
	}
	return msgs
}

// persist hands one record to the store. Failures are logged and swallowed;
// persistence must never interrupt the visible conversation.
func (c *Conversation) persist(m models.ChatMessage) {
	if err := c.st.AddChatMessage(m); err != nil {
		slog.Warn("flow.persist: message write failed", "error", err, "sessionID", m.SessionID, "isUser", m.IsUser)
	}
}

// buildContext maps the most recent HistoryWindow messages to generation
// roles and trims leading assistant turns; the generation collaborator
// requires the transcript to begin with a user turn. The result may be empty.
func buildContext(messages []models.ChatMessage) []genai.HistoryMessage {
	if len(messages) > HistoryWindow {
		messages = messages[len(messages)-HistoryWindow:]
	}

	window := make([]genai.HistoryMessage, 0, len(messages))
	for _, m := range messages {
		role := "assistant"
		if m.IsUser {
			role = "user"
		}
		window = append(window, genai.HistoryMessage{Role: role, Text: m.Message})
	}

	for len(window) > 0 && window[0].Role != "user" {
		window = window[1:]
	}
	return window
}
