// Package flow routes conversation messages through topic handlers and
// tracks per-conversation state. Safety analysis always runs before any
// routing decision.
package flow

import (
	"time"
)

// Topic identifies the conversation subject currently in control.
type Topic string

const (
	TopicConversationStart Topic = "conversation_start"
	TopicGreeting          Topic = "greeting"
	TopicHealthInformation Topic = "health_information"
	TopicNurseEscalation   Topic = "nurse_escalation"
	TopicCrisisSupport     Topic = "crisis_support"
	TopicConsentCapture    Topic = "consent_capture"
	TopicEndOfConversation Topic = "end_of_conversation"
	TopicFallback          Topic = "fallback"
)

// Stage is the position within a topic's own flow.
type Stage string

const (
	StageGreeting            Stage = "greeting"
	StageExploring           Stage = "exploring"
	StageInformationDelivery Stage = "information_delivery"
	StageConsentRequest      Stage = "consent_request"
	StageContactCollection   Stage = "contact_collection"
	StageEscalationPending   Stage = "escalation_pending"
	StageCrisisResponse      Stage = "crisis_response"
	StageCompletion          Stage = "completion"
)

// allowedStages is the closed transition table. Handlers may only move a
// conversation to a topic/stage pair listed here.
var allowedStages = map[Topic][]Stage{
	TopicConversationStart: {StageGreeting},
	TopicGreeting:          {StageGreeting, StageExploring},
	TopicHealthInformation: {StageExploring, StageInformationDelivery, StageCompletion},
	TopicNurseEscalation:   {StageConsentRequest, StageContactCollection, StageEscalationPending, StageCompletion},
	TopicCrisisSupport:     {StageCrisisResponse, StageEscalationPending, StageCompletion},
	TopicConsentCapture:    {StageConsentRequest, StageContactCollection},
	TopicEndOfConversation: {StageCompletion},
	TopicFallback:          {StageExploring},
}

// ValidTransition reports whether the topic/stage pair is in the table.
func ValidTransition(topic Topic, stage Stage) bool {
	for _, s := range allowedStages[topic] {
		if s == stage {
			return true
		}
	}
	return false
}

// ConsentStatus tracks the outcome of a consent request.
type ConsentStatus string

const (
	ConsentPending  ConsentStatus = "pending"
	ConsentGranted  ConsentStatus = "granted"
	ConsentDeclined ConsentStatus = "declined"
)

// ConsentRecord documents what the user agreed to, in GDPR terms.
type ConsentRecord struct {
	Purpose        string        `json:"purpose"`
	DataCategories []string      `json:"data_categories"`
	LegalBasis     string        `json:"legal_basis"` // consent or vital_interests
	Retention      string        `json:"retention"`
	Status         ConsentStatus `json:"status"`
	DecidedAt      *time.Time    `json:"decided_at,omitempty"`
}

const (
	LegalBasisConsent        = "consent"
	LegalBasisVitalInterests = "vital_interests"
)

// NurseCallbackConsent is the consent request presented before contact
// details are collected for a nurse callback.
func NurseCallbackConsent() ConsentRecord {
	return ConsentRecord{
		Purpose:        "Share your contact details with the Ask Eve nurse team so they can call you back",
		DataCategories: []string{"name", "phone", "email"},
		LegalBasis:     LegalBasisConsent,
		Retention:      "30 days after the callback is completed",
		Status:         ConsentPending,
	}
}

// CrisisConsent documents the vital-interests basis used when a crisis
// escalation proceeds without an explicit consent step.
func CrisisConsent() ConsentRecord {
	now := time.Now().UTC()
	return ConsentRecord{
		Purpose:        "Alert the nurse team to a safety concern",
		DataCategories: []string{"conversation_id", "user_id"},
		LegalBasis:     LegalBasisVitalInterests,
		Retention:      "As required for safeguarding records",
		Status:         ConsentGranted,
		DecidedAt:      &now,
	}
}

// ConversationState is everything the engine knows about one conversation.
// It is persisted as a single JSON document; the store serializes updates
// per conversation.
type ConversationState struct {
	ConversationID string         `json:"conversation_id"`
	UserID         string         `json:"user_id"`
	Topic          Topic          `json:"topic"`
	Stage          Stage          `json:"stage"`
	PreviousTopic  Topic          `json:"previous_topic,omitempty"`
	VisitedTopics  []Topic        `json:"visited_topics,omitempty"`
	Consent        *ConsentRecord `json:"consent,omitempty"`
	RecentMessages []string       `json:"recent_messages,omitempty"`
	RiskFlags      []string       `json:"risk_flags,omitempty"`
	EscalationID   string         `json:"escalation_id,omitempty"`
	MessageCount   int            `json:"message_count"`
	StartedAt      time.Time      `json:"started_at"`
	LastActivity   time.Time      `json:"last_activity"`
}

// NewConversationState creates the initial state for a conversation.
func NewConversationState(conversationID, userID string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		ConversationID: conversationID,
		UserID:         userID,
		Topic:          TopicConversationStart,
		Stage:          StageGreeting,
		StartedAt:      now,
		LastActivity:   now,
	}
}

// Clone returns a deep copy. The engine hands handlers a copy so a failed
// handler leaves the stored state untouched.
func (s *ConversationState) Clone() *ConversationState {
	clone := *s
	clone.VisitedTopics = append([]Topic(nil), s.VisitedTopics...)
	clone.RecentMessages = append([]string(nil), s.RecentMessages...)
	clone.RiskFlags = append([]string(nil), s.RiskFlags...)
	if s.Consent != nil {
		consent := *s.Consent
		consent.DataCategories = append([]string(nil), s.Consent.DataCategories...)
		clone.Consent = &consent
	}
	return &clone
}

// Visited reports whether the conversation has been in the topic before.
func (s *ConversationState) Visited(topic Topic) bool {
	for _, t := range s.VisitedTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// MoveTo transitions the state to a new topic/stage pair. Invalid pairs are
// rejected so a buggy handler cannot corrupt the flow.
func (s *ConversationState) MoveTo(topic Topic, stage Stage) bool {
	if !ValidTransition(topic, stage) {
		return false
	}
	if topic != s.Topic {
		s.PreviousTopic = s.Topic
		if !s.Visited(s.Topic) {
			s.VisitedTopics = append(s.VisitedTopics, s.Topic)
		}
	}
	s.Topic = topic
	s.Stage = stage
	return true
}

// maxRecentMessages bounds the rolling context window kept in state.
const maxRecentMessages = 5

// RecordMessage appends a message to the rolling context window.
func (s *ConversationState) RecordMessage(message string) {
	s.RecentMessages = append(s.RecentMessages, message)
	if len(s.RecentMessages) > maxRecentMessages {
		s.RecentMessages = s.RecentMessages[len(s.RecentMessages)-maxRecentMessages:]
	}
	s.MessageCount++
	s.LastActivity = time.Now().UTC()
}

// AddRiskFlag records a risk flag once.
func (s *ConversationState) AddRiskFlag(flag string) {
	for _, f := range s.RiskFlags {
		if f == flag {
			return
		}
	}
	s.RiskFlags = append(s.RiskFlags, flag)
}
