package flow

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/safehaven-ng/safespeak/internal/classifier"
	"github.com/safehaven-ng/safespeak/internal/models"
)

func staticReply(t *testing.T, r *StaticResponder, text string) string {
	t.Helper()
	reply, err := r.GenerateResponse(context.Background(), text, classifier.Classify(text), nil)
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}
	return reply
}

func TestStaticResponderTriggerReplies(t *testing.T) {
	r := NewStaticResponder(nil)

	cases := []struct {
		text string
		want string
	}{
		{"help now please", immediateHelpResponse},
		{"rescue", immediateHelpResponse},
		{"there is an order issue", immediateHelpResponse},
		{"I want a plan", planResponse},
		{"I am ready", readyResponse},
	}
	for _, tc := range cases {
		if got := staticReply(t, r, tc.text); got != tc.want {
			t.Errorf("reply for %q = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestStaticResponderImmediateHelpTakesPriority(t *testing.T) {
	r := NewStaticResponder(nil)
	// "help now" outranks "plan" when both appear.
	if got := staticReply(t, r, "help now with my plan"); got != immediateHelpResponse {
		t.Errorf("expected immediate-help reply, got %q", got)
	}
}

func TestStaticResponderBenignMessagesDrawFromPool(t *testing.T) {
	r := NewStaticResponder(rand.New(rand.NewPCG(1, 2)))

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		reply := staticReply(t, r, "how are you")
		found := false
		for _, s := range supportiveResponses {
			if reply == s {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("reply not from the supportive pool: %q", reply)
		}
		seen[reply] = true
	}
	if len(seen) < 2 {
		t.Error("expected the pool selection to vary across turns")
	}
}

func TestStaticResponderDeterministicWithSeededSource(t *testing.T) {
	a := NewStaticResponder(rand.New(rand.NewPCG(7, 7)))
	b := NewStaticResponder(rand.New(rand.NewPCG(7, 7)))
	for i := 0; i < 20; i++ {
		if got, want := staticReply(t, a, "hello"), staticReply(t, b, "hello"); got != want {
			t.Fatalf("seeded responders diverged at turn %d: %q vs %q", i, got, want)
		}
	}
}

func TestStaticResponderEmergencyRepliesNameResources(t *testing.T) {
	if !strings.Contains(immediateHelpResponse, models.EmergencyServicesNumber) {
		t.Error("immediate-help reply must name the emergency services number")
	}
}
