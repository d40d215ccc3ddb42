// Package classifier provides the fixed trigger-phrase scan applied to every
// inbound chat message before it reaches the generation client.
//
// Matching is deliberately substring-based rather than word-boundary based:
// several triggers are coded phrases users embed inside ordinary-looking
// sentences ("I have an order issue with my delivery"), and over-matching is
// the accepted trade-off for never missing one.
package classifier

import "strings"

// TriggerWords is the fixed set of phrases whose presence marks a message as
// an emergency signal. Order is significant: Classify reports matches in this
// order.
var TriggerWords = []string{"plan", "ready", "rescue", "order issue", "help now"}

// Classify lower-cases text and returns the subset of TriggerWords contained
// in it. The result is nil when nothing matches. Pure and total.
func Classify(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, w := range TriggerWords {
		if strings.Contains(lower, w) {
			found = append(found, w)
		}
	}
	return found
}

// IsEmergency reports whether text contains at least one trigger phrase.
func IsEmergency(text string) bool {
	return len(Classify(text)) > 0
}
