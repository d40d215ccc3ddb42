// Package models defines the core data structures for SafeSpeak.
//
// This file holds the safety-plan draft types owned by wizard sessions.
package models

// EmergencyContact is one person the user can call for help. Empty fields are
// allowed as placeholders while the draft is being filled in.
type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

// SafetyPlan is the mutable draft accumulated by the safety-plan wizard.
// Every list field always contains at least one slot; rows are only ever
// appended, never removed. The draft lives in memory only and is discarded
// when its wizard session ends.
type SafetyPlan struct {
	EmergencyContacts  []EmergencyContact `json:"emergency_contacts"`
	SafeLocations      []string           `json:"safe_locations"`
	ImportantDocuments []string           `json:"important_documents"`
	EscapeRoutes       []string           `json:"escape_routes"`
	WarningSignals     []string           `json:"warning_signals"`
	PersonalItems      []string           `json:"personal_items"`
}

// NewSafetyPlan returns an empty draft with one placeholder slot per list
// field, matching what a freshly mounted wizard shows.
func NewSafetyPlan() SafetyPlan {
	return SafetyPlan{
		EmergencyContacts:  []EmergencyContact{{}},
		SafeLocations:      []string{""},
		ImportantDocuments: []string{},
		EscapeRoutes:       []string{""},
		WarningSignals:     []string{""},
		PersonalItems:      []string{""},
	}
}
