package identity

import (
	"testing"

	"github.com/safehaven-ng/safespeak/internal/store"
)

func TestSignUpAndResolve(t *testing.T) {
	p := NewStoreProvider(store.NewInMemoryStore())

	user, token, err := p.SignUp("someone@example.com", "Someone")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if user.IsAnonymous {
		t.Error("named account should not be anonymous")
	}
	if token == "" {
		t.Fatal("expected a session token")
	}

	resolved, err := p.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.ID != user.ID || resolved.Email != "someone@example.com" {
		t.Errorf("resolved wrong user: %+v", resolved)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	p := NewStoreProvider(store.NewInMemoryStore())
	if _, _, err := p.SignUp("dup@example.com", ""); err != nil {
		t.Fatalf("first SignUp failed: %v", err)
	}
	if _, _, err := p.SignUp("dup@example.com", ""); err != ErrEmailInUse {
		t.Errorf("expected ErrEmailInUse, got %v", err)
	}
}

func TestSignInUnknownEmail(t *testing.T) {
	p := NewStoreProvider(store.NewInMemoryStore())
	if _, _, err := p.SignIn("ghost@example.com"); err != ErrEmailNotFound {
		t.Errorf("expected ErrEmailNotFound, got %v", err)
	}
}

func TestSignInAnonymously(t *testing.T) {
	p := NewStoreProvider(store.NewInMemoryStore())

	user, token, err := p.SignInAnonymously()
	if err != nil {
		t.Fatalf("SignInAnonymously failed: %v", err)
	}
	if !user.IsAnonymous {
		t.Error("expected anonymous flag set")
	}
	if user.Role != "victim" {
		t.Errorf("expected victim role, got %s", user.Role)
	}

	resolved, err := p.Resolve(token)
	if err != nil || resolved.ID != user.ID {
		t.Errorf("anonymous token should resolve: %+v, %v", resolved, err)
	}
}

func TestSignOutInvalidatesToken(t *testing.T) {
	p := NewStoreProvider(store.NewInMemoryStore())
	_, token, err := p.SignInAnonymously()
	if err != nil {
		t.Fatalf("SignInAnonymously failed: %v", err)
	}

	p.SignOut(token)
	if _, err := p.Resolve(token); err != ErrUnknownToken {
		t.Errorf("expected ErrUnknownToken after sign out, got %v", err)
	}
	// Idempotent
	p.SignOut(token)
}

func TestResolveUnknownToken(t *testing.T) {
	p := NewStoreProvider(store.NewInMemoryStore())
	if _, err := p.Resolve("not-a-token"); err != ErrUnknownToken {
		t.Errorf("expected ErrUnknownToken, got %v", err)
	}
}
