// Package api provides HTTP handlers for SafeSpeak endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/safehaven-ng/safespeak/internal/identity"
	"github.com/safehaven-ng/safespeak/internal/models"
)

// authResult is the response payload for every successful sign-in variant.
type authResult struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

func (s *Server) signUpHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.signUpHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.signUpHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.signUpHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	user, token, err := s.idp.SignUp(req.Email, req.Name)
	if err != nil {
		if errors.Is(err, identity.ErrEmailInUse) {
			writeJSONResponse(w, http.StatusConflict, models.Error("Email is already registered"))
			return
		}
		slog.Error("Server.signUpHandler: sign-up failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create account"))
		return
	}

	slog.Info("Server.signUpHandler: account created", "userID", user.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(authResult{User: user, Token: token}))
}

func (s *Server) signInHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.signInHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.signInHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.signInHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	user, token, err := s.idp.SignIn(req.Email)
	if err != nil {
		if errors.Is(err, identity.ErrEmailNotFound) {
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("No account for that email"))
			return
		}
		slog.Error("Server.signInHandler: sign-in failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to sign in"))
		return
	}

	slog.Info("Server.signInHandler: signed in", "userID", user.ID)
	writeJSONResponse(w, http.StatusOK, models.Success(authResult{User: user, Token: token}))
}

func (s *Server) anonymousHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.anonymousHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	user, token, err := s.idp.SignInAnonymously()
	if err != nil {
		slog.Error("Server.anonymousHandler: anonymous sign-in failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start anonymous session"))
		return
	}

	slog.Info("Server.anonymousHandler: anonymous session started", "userID", user.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(authResult{User: user, Token: token}))
}

func (s *Server) signOutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.signOutHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, token, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	s.conv.CloseSession(user.ID)
	s.idp.SignOut(token)

	slog.Info("Server.signOutHandler: signed out", "userID", user.ID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Signed out", nil))
}
