// Package models defines the core data structures for SafeSpeak.
//
// This file holds the emergency resource directory. These are configuration
// values, not computed data; they appear verbatim in the chat fallback
// message and in the exported safety-plan document.
package models

const (
	// EmergencyServicesName is the display name for the national emergency line.
	EmergencyServicesName = "Emergency Services"
	// EmergencyServicesNumber is the national emergency phone number.
	EmergencyServicesNumber = "199"
	// HotlineName is the display name for the domestic violence hotline.
	HotlineName = "National Domestic Violence Hotline"
	// HotlineNumber is the domestic violence hotline phone number.
	HotlineNumber = "+234 80-6467-9774"
	// SupportLineName is the display name for the Safe Haven support line.
	SupportLineName = "Safe Haven Support"
	// SupportLineNumber is the Safe Haven support line phone number.
	SupportLineNumber = "+2347032861486"
)
