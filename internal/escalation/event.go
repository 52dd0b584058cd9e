package escalation

import (
	"time"
)

// Type classifies an escalation event.
type Type string

const (
	TypeCrisis         Type = "crisis"
	TypeNurseCallback  Type = "nurse_callback"
	TypeGeneralSupport Type = "general_support"
)

// Urgency orders escalation events for nurse triage.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyHigh      Urgency = "high"
	UrgencyMedium    Urgency = "medium"
	UrgencyLow       Urgency = "low"
)

const (
	DeliveryPending  = "pending"
	DeliveryNotified = "notified"
	DeliveryFailed   = "failed"
)

// Event is a persisted escalation record. The event is written before any
// notification attempt so a delivery failure never loses the escalation.
type Event struct {
	ID                string          `json:"id"`
	ConversationID    string          `json:"conversation_id"`
	UserID            string          `json:"user_id"`
	Type              Type            `json:"type"`
	Urgency           Urgency         `json:"urgency"`
	Severity          string          `json:"severity"`
	Summary           string          `json:"summary"`
	Triggers          []string        `json:"triggers,omitempty"`
	Contact           *ContactDetails `json:"contact,omitempty"`
	EstimatedCallback string          `json:"estimated_callback,omitempty"`
	DeliveryStatus    string          `json:"delivery_status"`
	DeliveryError     string          `json:"delivery_error,omitempty"`
	NotifiedAt        *time.Time      `json:"notified_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// UrgencyForSeverity maps an analyzer severity label to an event urgency.
func UrgencyForSeverity(severity string) Urgency {
	switch severity {
	case "crisis":
		return UrgencyImmediate
	case "high_concern":
		return UrgencyHigh
	case "emotional_support":
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// EstimateCallback returns the callback window quoted to the user. hour is
// the local hour of day, used to decide whether the nurse team is in
// business hours.
func EstimateCallback(escType Type, urgency Urgency, hour, businessStart, businessEnd int) string {
	if escType == TypeCrisis {
		if urgency == UrgencyImmediate {
			return "within 2 hours"
		}
		return "within 4 hours"
	}
	inHours := hour >= businessStart && hour < businessEnd
	if escType == TypeNurseCallback {
		if inHours && (urgency == UrgencyHigh || urgency == UrgencyImmediate) {
			return "within 24 hours"
		}
		if !inHours {
			return "within 24-48 hours"
		}
	}
	return "within 48-72 hours"
}
