package escalation

import (
	"regexp"
	"strings"

	"github.com/simonlevelai/askeve-platform/internal/safety"
)

// ResponseLevel is the progressive response strategy, strictly ordered by
// severity: 1 information, 2 concern, 3 warning, 4 crisis.
type ResponseLevel int

const (
	LevelInformation ResponseLevel = iota + 1
	LevelConcern
	LevelWarning
	LevelCrisis
)

// LevelForSeverity maps the canonical severity scale onto response levels.
// The mapping is strictly increasing.
func LevelForSeverity(s safety.Severity) ResponseLevel {
	switch s {
	case safety.SeverityCrisis:
		return LevelCrisis
	case safety.SeverityHighConcern:
		return LevelWarning
	case safety.SeverityEmotionalSupport:
		return LevelConcern
	default:
		return LevelInformation
	}
}

// AccessibilityMeta carries compliance attributes attached to every
// response. These are metadata, not rendering logic.
type AccessibilityMeta struct {
	ScreenReaderCompatible bool `json:"screen_reader_compatible"`
	HighContrast           bool `json:"high_contrast"`
	MHRACompliant          bool `json:"mhra_compliant"`
}

// Response is the user-facing output of the progressive responder.
type Response struct {
	Level              ResponseLevel     `json:"level"`
	Tone               string            `json:"tone"`
	Text               string            `json:"text"`
	Disclaimers        []string          `json:"disclaimers"`
	SuggestedActions   []string          `json:"suggested_actions,omitempty"`
	SupportResources   []Resource        `json:"support_resources,omitempty"`
	EmergencyContacts  []Resource        `json:"emergency_contacts,omitempty"`
	ImmediateActions   []string          `json:"immediate_actions,omitempty"`
	RequiresEscalation bool              `json:"requires_escalation"`
	NurseEscalation    bool              `json:"nurse_escalation"`
	Priority           string            `json:"priority,omitempty"`
	RequiresCallback   bool              `json:"requires_callback"`
	Accessibility      AccessibilityMeta `json:"accessibility"`
}

const (
	disclaimerGeneral  = "This is general information only, not medical advice."
	disclaimerProvider = "Please consult your healthcare provider about your individual situation."
)

// clinicalPolicyPatterns detect text that issues a diagnosis or instructs a
// clinical action. The check runs over every generated response rather than
// trusting the template author.
var clinicalPolicyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\byou\s+(probably\s+)?have\s+(cancer|an?\s+\w+\s+(infection|tumour|tumor|condition))\b`),
	regexp.MustCompile(`(?i)\b(this|it)\s+is\s+(definitely|certainly|clearly)\s+(cancer|a\s+tumour|a\s+tumor)\b`),
	regexp.MustCompile(`(?i)\byou\s+should\s+(take|stop\s+taking|start\s+taking|increase|decrease)\s+\w+`),
	regexp.MustCompile(`(?i)\b(diagnos(is|ed|e)\s+(is|of|you))\b`),
	regexp.MustCompile(`(?i)\bstop\s+(your|the)\s+(medication|treatment|tablets)\b`),
}

// violatesClinicalPolicy reports whether text diagnoses or instructs a
// clinical action.
func violatesClinicalPolicy(text string) bool {
	for _, p := range clinicalPolicyPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

const policyFallbackText = "I can share general information, but I'm not able to give medical advice. Your GP or the Ask Eve nurse team can talk through your individual situation."

// Responder maps a safety verdict to a progressive response. Respond is a
// pure function of its inputs given the fixed resource table.
type Responder struct{}

// NewResponder creates a responder.
func NewResponder() *Responder {
	return &Responder{}
}

// Respond builds the user-facing reply for the verdict. It performs no I/O.
func (r *Responder) Respond(result safety.SafetyResult, userQuery string) Response {
	var resp Response
	switch LevelForSeverity(result.Severity) {
	case LevelCrisis:
		resp = r.crisisResponse(result)
	case LevelWarning:
		resp = r.warningResponse(result)
	case LevelConcern:
		resp = r.concernResponse(result)
	default:
		resp = r.informationResponse(userQuery)
	}

	if violatesClinicalPolicy(resp.Text) {
		resp.Text = policyFallbackText
	}

	resp.Accessibility = AccessibilityMeta{
		ScreenReaderCompatible: true,
		HighContrast:           true,
		MHRACompliant:          true,
	}
	return resp
}

func (r *Responder) informationResponse(userQuery string) Response {
	var b strings.Builder
	b.WriteString("Thank you for your question. ")
	b.WriteString("I can share general information from trusted sources to help you understand your health. ")
	b.WriteString("If anything feels urgent or unusual for you, your GP is the best first step.")

	return Response{
		Level:       LevelInformation,
		Tone:        "informative",
		Text:        b.String(),
		Disclaimers: []string{disclaimerGeneral, disclaimerProvider},
		SuggestedActions: []string{
			"Ask me another question",
			"Request a call back from a nurse",
		},
	}
}

func (r *Responder) concernResponse(result safety.SafetyResult) Response {
	text := "It sounds like things are really difficult right now, and I'm glad you've told me. " +
		"You don't have to manage this alone. Speaking to your GP is a good next step, and the support " +
		"services below are there whenever you need someone to talk to."

	return Response{
		Level:       LevelConcern,
		Tone:        "supportive",
		Text:        text,
		Disclaimers: []string{disclaimerGeneral, disclaimerProvider},
		SuggestedActions: []string{
			"Book an appointment with your GP",
			"Speak to the Ask Eve nurse team",
		},
		SupportResources:   supportResources(),
		RequiresEscalation: true,
		RequiresCallback:   result.HasCategory(safety.CategoryCallbackRequest),
	}
}

func (r *Responder) warningResponse(result safety.SafetyResult) Response {
	text := "I'm concerned about what you've shared, and I want to make sure you get the right support soon. " +
		"Please contact NHS 111 today to speak to someone about this - you don't need to wait for a GP appointment. " +
		"Our nurse team has also been made aware so they can reach out."

	return Response{
		Level:       LevelWarning,
		Tone:        "urgent",
		Text:        text,
		Disclaimers: []string{disclaimerProvider},
		SuggestedActions: []string{
			"Call NHS 111 today",
			"Speak to the Ask Eve nurse team",
		},
		SupportResources:   urgentCareContacts(),
		EmergencyContacts:  emergencyContacts(),
		RequiresEscalation: true,
		NurseEscalation:    true,
		Priority:           "high",
	}
}

func (r *Responder) crisisResponse(result safety.SafetyResult) Response {
	text := "I'm really concerned about your safety right now. " +
		"If you are in immediate danger, please call 999 straight away. " +
		"You can also call the Samaritans free on 116 123, any time of day or night - they will listen. " +
		"A member of our nurse team is being alerted now so a real person can support you."

	return Response{
		Level:       LevelCrisis,
		Tone:        "immediate",
		Text:        text,
		Disclaimers: []string{disclaimerProvider},
		ImmediateActions: []string{
			"Call 999 if you are in immediate danger",
			"Call Samaritans free on 116 123 (24/7)",
			"Text SHOUT to 85258",
			"Stay on this chat - our nurse team has been alerted",
		},
		SupportResources:   supportResources(),
		EmergencyContacts:  emergencyContacts(),
		RequiresEscalation: true,
		NurseEscalation:    true,
		Priority:           "immediate",
		RequiresCallback:   true,
	}
}
