package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/safehaven-ng/safespeak/internal/flow"
	"github.com/safehaven-ng/safespeak/internal/models"
)

func (s *Server) preferencesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	user, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		prefs, err := s.st.GetPreferences(user.ID)
		if err != nil {
			slog.Error("Server.preferencesHandler: preferences read failed", "error", err, "userID", user.ID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load preferences"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(prefs))

	case http.MethodPut:
		var prefs models.Preferences
		if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
			slog.Warn("Server.preferencesHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := prefs.Validate(); err != nil {
			slog.Warn("Server.preferencesHandler: validation failed", "error", err, "userID", user.ID)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		if err := s.st.SavePreferences(user.ID, prefs); err != nil {
			slog.Error("Server.preferencesHandler: preferences save failed", "error", err, "userID", user.ID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save preferences"))
			return
		}
		slog.Info("Server.preferencesHandler: preferences saved", "userID", user.ID)
		writeJSONResponse(w, http.StatusOK, models.Success(prefs))

	default:
		w.Header().Set("Allow", "GET, PUT")
		slog.Warn("Server.preferencesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// chatTurnResult carries the two records appended by one conversation turn.
type chatTurnResult struct {
	UserMessage models.ChatMessage `json:"user_message"`
	BotMessage  models.ChatMessage `json:"bot_message"`
}

func (s *Server) chatMessagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.chatMessagesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req models.ChatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatMessagesHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatMessagesHandler: validation failed", "error", err, "userID", user.ID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	sess, err := s.conv.OpenSession(r.Context(), user)
	if err != nil {
		slog.Error("Server.chatMessagesHandler: failed to open session", "error", err, "userID", user.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to open chat session"))
		return
	}

	userMsg, botMsg, err := s.conv.ProcessMessage(r.Context(), sess, req.Message)
	if err != nil {
		if errors.Is(err, flow.ErrTurnInFlight) {
			writeJSONResponse(w, http.StatusConflict, models.Error("A reply is already being composed"))
			return
		}
		if errors.Is(err, flow.ErrSessionClosed) {
			writeJSONResponse(w, http.StatusGone, models.Error("Chat session has ended"))
			return
		}
		slog.Error("Server.chatMessagesHandler: turn failed", "error", err, "userID", user.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(chatTurnResult{UserMessage: userMsg, BotMessage: botMsg}))
}

func (s *Server) chatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.chatHistoryHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	history := s.conv.History(r.Context(), user.ID)
	if history == nil {
		history = []models.ChatMessage{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(history))
}

// quickExitResult tells the client where to navigate after the reset.
type quickExitResult struct {
	RedirectTo string `json:"redirect_to"`
}

// quickExitHandler wipes every piece of session-scoped state for the caller
// and hands back a fixed neutral destination. Reset strictly precedes
// navigation; the persisted transcript and preferences are untouched.
func (s *Server) quickExitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.quickExitHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, token, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	s.conv.CloseSession(user.ID)
	discarded := s.wizards.DiscardUser(user.ID)
	s.idp.SignOut(token)

	slog.Info("Server.quickExitHandler: session state wiped", "userID", user.ID, "wizardsDiscarded", discarded)
	writeJSONResponse(w, http.StatusOK, models.Success(quickExitResult{RedirectTo: QuickExitDestination}))
}
