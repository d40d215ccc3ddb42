// Package flow provides the conversation orchestration for SafeSpeak chat.
//
// This file implements the canned responder used when no generation API key
// is configured. It mirrors the generation client's interface so the
// orchestrator does not care which backend it talks to.
package flow

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/safehaven-ng/safespeak/internal/genai"
)

// supportiveResponses is the pool used for non-emergency messages.
var supportiveResponses = []string{
	"I'm here to listen and support you. Take your time - there's no pressure to share more than you're comfortable with.",
	"Thank you for trusting me with your concerns. You're taking a brave step by reaching out. How are you feeling right now?",
	"Your safety and wellbeing matter. I'm here to help you explore your options and find resources that might be helpful.",
	"You're not alone in this. Many people face similar challenges, and there are people and resources available to help you.",
}

// Canned emergency responses, keyed by which trigger phrase was detected.
const (
	immediateHelpResponse = "I understand you need immediate help. Are you in a safe location right now? If this is a life-threatening emergency, please call 199. I can help you create a safety plan or connect you with local resources. Your safety is my priority."
	planResponse          = "I can help you create a safety plan. This includes identifying safe places to go, important documents to gather, and trusted people to contact. Would you like to start working on this together?"
	readyResponse         = "It sounds like you're preparing to take action. I'm here to support you. Do you have a safe place to go? Have you gathered important documents? Remember, you're brave and you deserve safety."
)

// StaticResponder generates canned supportive replies without a network
// dependency. It satisfies the same interface as the generation client.
type StaticResponder struct {
	rng *rand.Rand
}

// interface guard
var _ genai.ClientInterface = (*StaticResponder)(nil)

// NewStaticResponder creates a canned responder. Pass a seeded rng for
// deterministic selection in tests; nil uses a randomly seeded source.
func NewStaticResponder(rng *rand.Rand) *StaticResponder {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &StaticResponder{rng: rng}
}

// GenerateResponse returns a canned reply. Emergency triggers get a specific
// crisis response; everything else gets a uniformly random supportive
// message. Never fails.
func (r *StaticResponder) GenerateResponse(ctx context.Context, userMessage string, triggers []string, history []genai.HistoryMessage) (string, error) {
	if len(triggers) > 0 {
		slog.Debug("flow.StaticResponder: emergency reply selected", "triggers", triggers)
		switch {
		case slices.Contains(triggers, "help now") || slices.Contains(triggers, "rescue") || slices.Contains(triggers, "order issue"):
			return immediateHelpResponse, nil
		case slices.Contains(triggers, "plan"):
			return planResponse, nil
		default:
			return readyResponse, nil
		}
	}
	return supportiveResponses[r.rng.IntN(len(supportiveResponses))], nil
}
