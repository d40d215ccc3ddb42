// Package identity resolves who is talking to SafeSpeak.
//
// Chat and persistence require a resolved identity; nothing may be sent or
// stored on behalf of an unresolved caller. The provider issues opaque random
// tokens held in memory only, so a process restart (or quick exit) invalidates
// every outstanding token. Deliberately no cryptography here: verification
// strength is delegated to the deployment's fronting identity service, and
// anonymous access must stay anonymous.
package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safehaven-ng/safespeak/internal/models"
	"github.com/safehaven-ng/safespeak/internal/store"
	"github.com/safehaven-ng/safespeak/internal/util"
)

// Error variables for identity resolution failures.
var (
	ErrUnknownToken  = errors.New("unknown or expired token")
	ErrEmailInUse    = errors.New("email already registered")
	ErrEmailNotFound = errors.New("no account for email")
)

// Provider defines the identity operations consumed by the API layer.
type Provider interface {
	// SignUp creates a named account and returns the user and a session token.
	SignUp(email, name string) (models.User, string, error)

	// SignIn resolves an existing named account and returns a fresh token.
	SignIn(email string) (models.User, string, error)

	// SignInAnonymously creates a throwaway identity with the victim role.
	SignInAnonymously() (models.User, string, error)

	// Resolve maps a token to its user, or ErrUnknownToken.
	Resolve(token string) (models.User, error)

	// SignOut invalidates a token. Idempotent.
	SignOut(token string)
}

// StoreProvider implements Provider backed by a Store for profiles and an
// in-memory token table.
type StoreProvider struct {
	st     store.Store
	mu     sync.RWMutex
	tokens map[string]string // token -> user ID
}

// NewStoreProvider creates an identity provider backed by the given store.
func NewStoreProvider(st store.Store) *StoreProvider {
	slog.Debug("identity.NewStoreProvider: creating provider")
	return &StoreProvider{st: st, tokens: make(map[string]string)}
}

// SignUp creates a named account. The email must not already be registered.
func (p *StoreProvider) SignUp(email, name string) (models.User, string, error) {
	existing, err := p.st.GetUserProfileByEmail(email)
	if err != nil {
		slog.Error("identity.SignUp: profile lookup failed", "error", err)
		return models.User{}, "", fmt.Errorf("failed to check existing account: %w", err)
	}
	if existing != nil {
		slog.Warn("identity.SignUp: email already registered")
		return models.User{}, "", ErrEmailInUse
	}

	now := time.Now()
	user := models.User{
		ID:          util.GenerateUserID(),
		Email:       email,
		Name:        name,
		Role:        models.RoleVictim,
		IsAnonymous: false,
		CreatedAt:   now,
		LastLogin:   now,
	}
	if err := p.st.SaveUserProfile(user); err != nil {
		slog.Error("identity.SignUp: profile save failed", "error", err, "userID", user.ID)
		return models.User{}, "", fmt.Errorf("failed to save profile: %w", err)
	}

	token := p.issueToken(user.ID)
	slog.Info("identity.SignUp: account created", "userID", user.ID)
	return user, token, nil
}

// SignIn resolves a named account by email and issues a fresh token.
func (p *StoreProvider) SignIn(email string) (models.User, string, error) {
	user, err := p.st.GetUserProfileByEmail(email)
	if err != nil {
		slog.Error("identity.SignIn: profile lookup failed", "error", err)
		return models.User{}, "", fmt.Errorf("failed to look up account: %w", err)
	}
	if user == nil {
		slog.Warn("identity.SignIn: no account for email")
		return models.User{}, "", ErrEmailNotFound
	}

	user.LastLogin = time.Now()
	if err := p.st.SaveUserProfile(*user); err != nil {
		// Last-login bookkeeping is not worth failing a sign-in over.
		slog.Warn("identity.SignIn: failed to update last login", "error", err, "userID", user.ID)
	}

	token := p.issueToken(user.ID)
	slog.Info("identity.SignIn: signed in", "userID", user.ID)
	return *user, token, nil
}

// SignInAnonymously creates a synthetic identity so people can talk without
// giving an email, mirroring the anonymous path of the original product.
func (p *StoreProvider) SignInAnonymously() (models.User, string, error) {
	now := time.Now()
	user := models.User{
		ID:          util.GenerateUserID(),
		Name:        "Anonymous User",
		Role:        models.RoleVictim,
		IsAnonymous: true,
		CreatedAt:   now,
		LastLogin:   now,
	}
	if err := p.st.SaveUserProfile(user); err != nil {
		slog.Error("identity.SignInAnonymously: profile save failed", "error", err, "userID", user.ID)
		return models.User{}, "", fmt.Errorf("failed to save anonymous profile: %w", err)
	}

	token := p.issueToken(user.ID)
	slog.Info("identity.SignInAnonymously: anonymous identity created", "userID", user.ID)
	return user, token, nil
}

// Resolve maps a token back to its user profile.
func (p *StoreProvider) Resolve(token string) (models.User, error) {
	p.mu.RLock()
	userID, ok := p.tokens[token]
	p.mu.RUnlock()
	if !ok {
		return models.User{}, ErrUnknownToken
	}

	user, err := p.st.GetUserProfile(userID)
	if err != nil {
		slog.Error("identity.Resolve: profile lookup failed", "error", err, "userID", userID)
		return models.User{}, fmt.Errorf("failed to load profile: %w", err)
	}
	if user == nil {
		slog.Warn("identity.Resolve: token maps to missing profile", "userID", userID)
		return models.User{}, ErrUnknownToken
	}
	return *user, nil
}

// SignOut invalidates a token.
func (p *StoreProvider) SignOut(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tokens, token)
}

func (p *StoreProvider) issueToken(userID string) string {
	token := uuid.NewString()
	p.mu.Lock()
	p.tokens[token] = userID
	p.mu.Unlock()
	return token
}
