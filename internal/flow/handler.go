package flow

import (
	"context"
	"regexp"
	"strings"

	"github.com/simonlevelai/askeve-platform/internal/content"
	"github.com/simonlevelai/askeve-platform/internal/escalation"
	"github.com/simonlevelai/askeve-platform/internal/safety"
)

// Reply is the user-facing portion of a handler's output.
type Reply struct {
	Text              string                `json:"text"`
	Disclaimers       []string              `json:"disclaimers,omitempty"`
	SuggestedActions  []string              `json:"suggested_actions,omitempty"`
	SupportResources  []escalation.Resource `json:"support_resources,omitempty"`
	EmergencyContacts []escalation.Resource `json:"emergency_contacts,omitempty"`
	ImmediateActions  []string              `json:"immediate_actions,omitempty"`
	Articles          []content.Article     `json:"articles,omitempty"`
	ConsentRequest    *ConsentRecord        `json:"consent_request,omitempty"`
	EstimatedCallback string                `json:"estimated_callback,omitempty"`
}

// HandlerInput is everything a handler sees for one message.
type HandlerInput struct {
	State   *ConversationState
	Message string
	Safety  safety.SafetyResult
}

// HandlerResult is a handler's reply plus the transition it requests. The
// engine validates the transition before applying it.
type HandlerResult struct {
	Reply           Reply
	NextTopic       Topic
	NextStage       Stage
	NurseEscalation bool
	EscalationID    string
}

// TopicHandler is one member of the closed handler set. Selection happens
// by explicit confidence comparison, never by type inspection.
type TopicHandler interface {
	Name() Topic
	SupportedStages() []Stage
	CanHandle(state *ConversationState, message string) bool
	IntentConfidence(state *ConversationState, message string) float64
	Handle(ctx context.Context, in HandlerInput) (HandlerResult, error)
}

// eligibilityThreshold is the minimum confidence for a handler to compete
// for a message.
const eligibilityThreshold = 0.3

// intentSignals describes how a handler recognizes its intent.
type intentSignals struct {
	patterns          []*regexp.Regexp
	patternConfidence float64
	keywords          []string
}

// keywordOverlapCap bounds how much keyword evidence alone can contribute.
const keywordOverlapCap = 0.8

// baseConfidence scores the message against the handler's signals: the
// best of pattern confidence and capped keyword overlap.
func (sig intentSignals) baseConfidence(message string) float64 {
	lower := strings.ToLower(message)

	score := 0.0
	for _, p := range sig.patterns {
		if p.MatchString(lower) {
			score = sig.patternConfidence
			break
		}
	}

	if len(sig.keywords) > 0 {
		// Pad with spaces so keywords match whole words, not substrings
		// ("hi" must not match "this").
		padded := " " + strings.Join(strings.FieldsFunc(lower, func(r rune) bool {
			return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
		}), " ") + " "

		matched := 0
		for _, kw := range sig.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				matched++
			}
		}
		overlap := float64(matched) / float64(len(sig.keywords))
		if overlap > keywordOverlapCap {
			overlap = keywordOverlapCap
		}
		if overlap > score {
			score = overlap
		}
	}
	return score
}

// contextBoostCap bounds how much conversational context can add.
const contextBoostCap = 0.4

// contextBoost rewards continuity: staying on the current topic, returning
// to a visited one, and handlers that support the current stage.
func contextBoost(state *ConversationState, topic Topic, stageSupported bool) float64 {
	boost := 0.0
	if state.Topic == topic {
		boost += 0.2
	}
	if state.Visited(topic) {
		boost += 0.1
	}
	if stageSupported {
		boost += 0.15
	}
	if boost > contextBoostCap {
		boost = contextBoostCap
	}
	return boost
}

func stageSupported(stages []Stage, stage Stage) bool {
	for _, s := range stages {
		if s == stage {
			return true
		}
	}
	return false
}

// scoreHandler combines base and contextual confidence for a handler.
func scoreHandler(h TopicHandler, state *ConversationState, message string) float64 {
	base := h.IntentConfidence(state, message)
	return base + contextBoost(state, h.Name(), stageSupported(h.SupportedStages(), state.Stage))
}

// eligible reports whether the handler may compete for this message.
func eligible(h TopicHandler, state *ConversationState, message string) bool {
	if !stageSupported(h.SupportedStages(), state.Stage) {
		return false
	}
	return h.CanHandle(state, message)
}
