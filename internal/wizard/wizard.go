// Package wizard implements the guided safety-plan builder: a fixed linear
// sequence of data-collection steps that accumulates a SafetyPlan draft and
// renders it to a downloadable plain-text document.
package wizard

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/safehaven-ng/safespeak/internal/models"
)

// Panel names the interactive component a step renders. Steps without a
// panel show a static question list instead.
type Panel string

const (
	PanelNone      Panel = ""
	PanelContacts  Panel = "contacts"
	PanelLocations Panel = "locations"
	PanelDocuments Panel = "documents"
	PanelWarnings  Panel = "warnings"
	PanelReview    Panel = "review"
)

// ListField names one of the ordered-sequence plan fields addressed by
// AddListItem and UpdateListItem.
type ListField string

const (
	FieldSafeLocations  ListField = "safe_locations"
	FieldEscapeRoutes   ListField = "escape_routes"
	FieldWarningSignals ListField = "warning_signals"
	FieldPersonalItems  ListField = "personal_items"
)

// Step is one entry in the fixed wizard sequence.
type Step struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Questions   []string `json:"questions,omitempty"`
	Panel       Panel    `json:"panel,omitempty"`
}

// steps is the fixed sequence. The cursor is always a valid index into it.
var steps = []Step{
	{
		Title:       "Assess Your Safety",
		Description: "Understanding your current situation and immediate safety needs.",
		Questions: []string{
			"Are you currently in immediate physical danger?",
			"Do you have a safe place to go if you need to leave quickly?",
			"Are there weapons in your home?",
			"Has the violence been escalating?",
		},
	},
	{
		Title:       "Emergency Contacts",
		Description: "People you can call for help in an emergency.",
		Panel:       PanelContacts,
	},
	{
		Title:       "Safe Locations",
		Description: "Places where you can go to be safe.",
		Panel:       PanelLocations,
	},
	{
		Title:       "Important Documents",
		Description: "Documents you should gather and keep safe.",
		Panel:       PanelDocuments,
	},
	{
		Title:       "Warning Signals",
		Description: "Signs that indicate violence may be about to occur.",
		Panel:       PanelWarnings,
	},
	{
		Title:       "Your Safety Plan",
		Description: "Review and save your personalized safety plan.",
		Panel:       PanelReview,
	},
}

// DocumentCatalog lists the documents offered by the documents panel.
// ToggleDocument accepts any name; this catalog is what the UI presents.
var DocumentCatalog = []string{
	"Driver's license or ID",
	"Social Security cards",
	"Birth certificates",
	"Passport",
	"Insurance papers",
	"Medical records",
	"Prescription medications",
	"Bank statements",
	"Credit cards",
	"Checkbook",
	"School records",
	"Immigration papers",
	"Lease/mortgage papers",
	"Car title/registration",
	"Protection orders",
	"Court documents",
}

// StepCount is the length of the fixed wizard sequence.
func StepCount() int { return len(steps) }

// Steps returns a copy of the fixed step sequence.
func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

// ExportFilename is the suggested filename for the exported plan document.
const ExportFilename = "safety-plan.txt"

// Wizard is one user's safety-plan session: a step cursor plus the draft it
// accumulates. All methods are safe for concurrent use; the draft is owned
// exclusively by this instance and never persisted.
type Wizard struct {
	ID     string
	UserID string

	mu         sync.Mutex
	cursor     int
	plan       models.SafetyPlan
	lastActive time.Time
}

// New creates a wizard at step 0 with an empty draft.
func New(id, userID string) *Wizard {
	return &Wizard{
		ID:         id,
		UserID:     userID,
		plan:       models.NewSafetyPlan(),
		lastActive: time.Now(),
	}
}

// touch must be called with the mutex held.
func (w *Wizard) touch() { w.lastActive = time.Now() }

// Cursor returns the current step index.
func (w *Wizard) Cursor() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cursor
}

// Step returns the current step definition.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return steps[w.cursor]
}

// Plan returns a deep copy of the current draft.
func (w *Wizard) Plan() models.SafetyPlan {
	w.mu.Lock()
	defer w.mu.Unlock()
	return copyPlan(w.plan)
}

// Next advances the cursor by one, clamped to the final step. Advancing is
// never blocked by validation; a user may move on with empty fields.
func (w *Wizard) Next() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	if w.cursor < len(steps)-1 {
		w.cursor++
	}
	return w.cursor
}

// Previous moves the cursor back by one, clamped to the first step.
func (w *Wizard) Previous() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	if w.cursor > 0 {
		w.cursor--
	}
	return w.cursor
}

// JumpTo sets the cursor directly, clamped to the valid range.
func (w *Wizard) JumpTo(index int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	switch {
	case index < 0:
		w.cursor = 0
	case index > len(steps)-1:
		w.cursor = len(steps) - 1
	default:
		w.cursor = index
	}
	return w.cursor
}

// UpdateContact sets one field of the contact at index. Out-of-range indices
// and unknown field names are silent no-ops; the operation is total.
func (w *Wizard) UpdateContact(index int, field, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	if index < 0 || index >= len(w.plan.EmergencyContacts) {
		return
	}
	switch field {
	case "name":
		w.plan.EmergencyContacts[index].Name = value
	case "phone":
		w.plan.EmergencyContacts[index].Phone = value
	case "relationship":
		w.plan.EmergencyContacts[index].Relationship = value
	}
}

// AddContact appends an empty contact record. No maximum is enforced.
func (w *Wizard) AddContact() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	w.plan.EmergencyContacts = append(w.plan.EmergencyContacts, models.EmergencyContact{})
}

// AddListItem appends an empty slot to the named list field. Unknown field
// names are a no-op.
func (w *Wizard) AddListItem(field ListField) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	if list := w.listFor(field); list != nil {
		*list = append(*list, "")
	}
}

// UpdateListItem sets one entry of the named list field. Out-of-range indices
// and unknown field names are silent no-ops.
func (w *Wizard) UpdateListItem(field ListField, index int, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	list := w.listFor(field)
	if list == nil || index < 0 || index >= len(*list) {
		return
	}
	(*list)[index] = value
}

// listFor must be called with the mutex held.
func (w *Wizard) listFor(field ListField) *[]string {
	switch field {
	case FieldSafeLocations:
		return &w.plan.SafeLocations
	case FieldEscapeRoutes:
		return &w.plan.EscapeRoutes
	case FieldWarningSignals:
		return &w.plan.WarningSignals
	case FieldPersonalItems:
		return &w.plan.PersonalItems
	default:
		return nil
	}
}

// ToggleDocument adds name to the document set if absent, removes it if
// present. Insertion order is preserved for display; toggling twice restores
// the original state.
func (w *Wizard) ToggleDocument(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	for i, doc := range w.plan.ImportantDocuments {
		if doc == name {
			w.plan.ImportantDocuments = append(w.plan.ImportantDocuments[:i], w.plan.ImportantDocuments[i+1:]...)
			return
		}
	}
	w.plan.ImportantDocuments = append(w.plan.ImportantDocuments, name)
}

// Export renders the draft into the plan document. Blank list entries are
// dropped; contact lines appear only when both name and phone are filled in.
// Export never fails.
func (w *Wizard) Export() string {
	plan := w.Plan()

	var b strings.Builder
	b.WriteString("PERSONAL SAFETY PLAN\n")
	fmt.Fprintf(&b, "Generated on: %s\n", time.Now().Format("2006-01-02"))

	b.WriteString("\nEMERGENCY CONTACTS:\n")
	for _, c := range plan.EmergencyContacts {
		if c.Name == "" || c.Phone == "" {
			continue
		}
		fmt.Fprintf(&b, "%s - %s (%s)\n", c.Name, c.Phone, c.Relationship)
	}

	writeSection(&b, "SAFE LOCATIONS:", plan.SafeLocations)
	writeSection(&b, "IMPORTANT DOCUMENTS:", plan.ImportantDocuments)
	writeSection(&b, "ESCAPE ROUTES:", plan.EscapeRoutes)
	writeSection(&b, "WARNING SIGNALS:", plan.WarningSignals)
	writeSection(&b, "PERSONAL ITEMS TO TAKE:", plan.PersonalItems)

	b.WriteString("\nREMEMBER:\n")
	b.WriteString("- Trust your instincts\n")
	b.WriteString("- Your safety is the priority\n")
	b.WriteString("- You are not alone\n")
	fmt.Fprintf(&b, "- Call %s if in immediate danger\n", models.EmergencyServicesNumber)
	fmt.Fprintf(&b, "- %s: %s\n", models.HotlineName, models.HotlineNumber)

	return b.String()
}

// writeSection emits a header followed by the non-blank entries of list.
func writeSection(b *strings.Builder, header string, list []string) {
	b.WriteString("\n" + header + "\n")
	for _, item := range list {
		if strings.TrimSpace(item) == "" {
			continue
		}
		b.WriteString(item + "\n")
	}
}

func copyPlan(p models.SafetyPlan) models.SafetyPlan {
	out := models.SafetyPlan{
		EmergencyContacts:  make([]models.EmergencyContact, len(p.EmergencyContacts)),
		SafeLocations:      append([]string(nil), p.SafeLocations...),
		ImportantDocuments: append([]string(nil), p.ImportantDocuments...),
		EscapeRoutes:       append([]string(nil), p.EscapeRoutes...),
		WarningSignals:     append([]string(nil), p.WarningSignals...),
		PersonalItems:      append([]string(nil), p.PersonalItems...),
	}
	copy(out.EmergencyContacts, p.EmergencyContacts)
	return out
}
