package flow

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/simonlevelai/askeve-platform/internal/compliance"
	"github.com/simonlevelai/askeve-platform/internal/content"
	"github.com/simonlevelai/askeve-platform/internal/escalation"
	"github.com/simonlevelai/askeve-platform/internal/safety"
)

// Escalator is the slice of the escalation service the handlers use.
type Escalator interface {
	CreateCrisisEscalation(ctx context.Context, conversationID, userID string, result safety.SafetyResult) (*escalation.Event, error)
	CreateCallbackEscalation(ctx context.Context, conversationID, userID string, result safety.SafetyResult, contact *escalation.ContactDetails) (*escalation.Event, error)
}

func defaultCanHandle(h TopicHandler, state *ConversationState, message string) bool {
	return scoreHandler(h, state, message) > eligibilityThreshold
}

// greetingHandler opens the conversation.
type greetingHandler struct {
	signals intentSignals
}

func newGreetingHandler() *greetingHandler {
	return &greetingHandler{signals: intentSignals{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*(hi|hiya|hello|hey|good\s+(morning|afternoon|evening))\b`),
		},
		patternConfidence: 0.9,
		keywords:          []string{"hi", "hello", "hey"},
	}}
}

func (h *greetingHandler) Name() Topic              { return TopicGreeting }
func (h *greetingHandler) SupportedStages() []Stage { return []Stage{StageGreeting} }

func (h *greetingHandler) CanHandle(state *ConversationState, message string) bool {
	return defaultCanHandle(h, state, message)
}

func (h *greetingHandler) IntentConfidence(state *ConversationState, message string) float64 {
	return h.signals.baseConfidence(message)
}

func (h *greetingHandler) Handle(ctx context.Context, in HandlerInput) (HandlerResult, error) {
	return HandlerResult{
		Reply: Reply{
			Text: "Hello, I'm Eve. I can share trusted information about gynaecological health, " +
				"or put you in touch with our nurse team. What would you like to know?",
			Disclaimers: []string{compliance.DisclaimerShort},
			SuggestedActions: []string{
				"Ask about symptoms or screening",
				"Request a call back from a nurse",
			},
		},
		NextTopic: TopicGreeting,
		NextStage: StageExploring,
	}, nil
}

// healthInformationHandler answers questions from the trusted content
// service.
type healthInformationHandler struct {
	searcher content.Searcher
	signals  intentSignals
}

func newHealthInformationHandler(searcher content.Searcher) *healthInformationHandler {
	return &healthInformationHandler{
		searcher: searcher,
		signals: intentSignals{
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(symptom|sign)s?\s+of\b`),
				regexp.MustCompile(`\btell\s+me\s+about\b`),
				regexp.MustCompile(`\bwhat\s+(is|are|causes)\b`),
			},
			patternConfidence: 0.85,
			keywords: []string{
				"cancer", "screening", "smear", "hpv", "symptom", "ovarian",
				"cervical", "womb", "vulval", "vaginal", "bleeding", "treatment",
			},
		},
	}
}

func (h *healthInformationHandler) Name() Topic { return TopicHealthInformation }

func (h *healthInformationHandler) SupportedStages() []Stage {
	return []Stage{StageGreeting, StageExploring, StageInformationDelivery, StageCompletion}
}

func (h *healthInformationHandler) CanHandle(state *ConversationState, message string) bool {
	return defaultCanHandle(h, state, message)
}

func (h *healthInformationHandler) IntentConfidence(state *ConversationState, message string) float64 {
	return h.signals.baseConfidence(message)
}

func (h *healthInformationHandler) Handle(ctx context.Context, in HandlerInput) (HandlerResult, error) {
	articles, err := h.searcher.Search(ctx, in.Message, 3)
	if err != nil {
		return HandlerResult{}, fmt.Errorf("flow: content search: %w", err)
	}

	var text string
	if len(articles) == 0 {
		text = "I couldn't find information on that in our trusted sources. " +
			"Your GP can help with questions I can't answer, or you can ask our nurse team."
	} else {
		text = fmt.Sprintf("Here's what I found from Eve Appeal's trusted information: %s. %s",
			articles[0].Title, articles[0].Summary)
	}

	return HandlerResult{
		Reply: Reply{
			Text:        text,
			Disclaimers: []string{compliance.DisclaimerMedium},
			Articles:    articles,
			SuggestedActions: []string{
				"Ask a follow-up question",
				"Request a call back from a nurse",
			},
		},
		NextTopic: TopicHealthInformation,
		NextStage: StageInformationDelivery,
	}, nil
}

// nurseEscalationHandler arranges a nurse callback. Contact details are
// only collected after consent is granted.
type nurseEscalationHandler struct {
	escalator Escalator
	signals   intentSignals
}

func newNurseEscalationHandler(escalator Escalator) *nurseEscalationHandler {
	return &nurseEscalationHandler{
		escalator: escalator,
		signals: intentSignals{
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(speak|talk)\s+(to|with)\s+(a\s+)?(nurse|someone)\b`),
				regexp.MustCompile(`\b(call|ring|phone)\s+me(\s+back)?\b`),
				regexp.MustCompile(`\bcall\s?back\b`),
			},
			patternConfidence: 0.9,
			keywords:          []string{"nurse", "callback", "call back", "speak to someone"},
		},
	}
}

func (h *nurseEscalationHandler) Name() Topic { return TopicNurseEscalation }

func (h *nurseEscalationHandler) SupportedStages() []Stage {
	return []Stage{StageGreeting, StageExploring, StageInformationDelivery, StageContactCollection, StageEscalationPending}
}

func (h *nurseEscalationHandler) CanHandle(state *ConversationState, message string) bool {
	if state.Stage == StageContactCollection && state.Topic == TopicNurseEscalation {
		return true
	}
	return defaultCanHandle(h, state, message)
}

func (h *nurseEscalationHandler) IntentConfidence(state *ConversationState, message string) float64 {
	return h.signals.baseConfidence(message)
}

func (h *nurseEscalationHandler) Handle(ctx context.Context, in HandlerInput) (HandlerResult, error) {
	state := in.State

	if state.Stage == StageContactCollection && state.Topic == TopicNurseEscalation {
		return h.collectContact(ctx, in)
	}

	// First ask for consent. No contact details move anywhere until the
	// user explicitly agrees.
	consent := NurseCallbackConsent()
	return HandlerResult{
		Reply: Reply{
			Text: "I can arrange for one of our specialist nurses to call you back. " +
				"To do that I'd need to share your name and contact details with the Ask Eve nurse team. " +
				"Is that okay?",
			Disclaimers:    []string{compliance.DisclaimerFull},
			ConsentRequest: &consent,
			SuggestedActions: []string{
				"Yes, that's fine",
				"No, not right now",
			},
		},
		NextTopic: TopicNurseEscalation,
		NextStage: StageConsentRequest,
	}, nil
}

func (h *nurseEscalationHandler) collectContact(ctx context.Context, in HandlerInput) (HandlerResult, error) {
	if in.State.Consent == nil || in.State.Consent.Status != ConsentGranted {
		return HandlerResult{}, fmt.Errorf("flow: contact collection without granted consent")
	}

	contact := parseContactDetails(in.Message)
	if verrs := contact.Validate(); len(verrs) > 0 {
		return HandlerResult{
			Reply: Reply{
				Text: "I couldn't quite get your contact details from that. " +
					"Could you share your name and a UK mobile number or email address? " +
					"For example: \"Jo Smith, 07123 456 789\".",
			},
			NextTopic: TopicNurseEscalation,
			NextStage: StageContactCollection,
		}, nil
	}

	event, err := h.escalator.CreateCallbackEscalation(ctx, in.State.ConversationID, in.State.UserID, in.Safety, &contact)
	if err != nil {
		return HandlerResult{}, fmt.Errorf("flow: create callback escalation: %w", err)
	}

	return HandlerResult{
		Reply: Reply{
			Text: fmt.Sprintf("Thank you, %s. I've passed your details to our nurse team and "+
				"someone will call you %s.", contact.Name, event.EstimatedCallback),
			Disclaimers:       []string{compliance.DisclaimerShort},
			EstimatedCallback: event.EstimatedCallback,
		},
		NextTopic:       TopicNurseEscalation,
		NextStage:       StageEscalationPending,
		NurseEscalation: true,
		EscalationID:    event.ID,
	}, nil
}

// consentCaptureHandler resolves a pending consent request.
type consentCaptureHandler struct {
	affirmative *regexp.Regexp
	negative    *regexp.Regexp
}

func newConsentCaptureHandler() *consentCaptureHandler {
	return &consentCaptureHandler{
		affirmative: regexp.MustCompile(`(?i)^\s*(yes|yeah|yep|ok|okay|sure|fine|that'?s fine|go ahead|i agree|please do)\b`),
		negative:    regexp.MustCompile(`(?i)^\s*(no|nope|not now|no thanks|no thank you|i'?d rather not|don'?t)\b`),
	}
}

func (h *consentCaptureHandler) Name() Topic { return TopicConsentCapture }

func (h *consentCaptureHandler) SupportedStages() []Stage {
	return []Stage{StageConsentRequest}
}

func (h *consentCaptureHandler) CanHandle(state *ConversationState, message string) bool {
	if state.Consent == nil || state.Consent.Status != ConsentPending {
		return false
	}
	return h.IntentConfidence(state, message) > eligibilityThreshold
}

func (h *consentCaptureHandler) IntentConfidence(state *ConversationState, message string) float64 {
	if h.affirmative.MatchString(message) || h.negative.MatchString(message) {
		return 0.95
	}
	return 0
}

func (h *consentCaptureHandler) Handle(ctx context.Context, in HandlerInput) (HandlerResult, error) {
	state := in.State
	if state.Consent == nil {
		return HandlerResult{}, fmt.Errorf("flow: consent capture with no pending consent")
	}

	now := time.Now().UTC()
	if h.affirmative.MatchString(in.Message) {
		state.Consent.Status = ConsentGranted
		state.Consent.DecidedAt = &now
		return HandlerResult{
			Reply: Reply{
				Text: "Thank you. Could you share your name and the best phone number or " +
					"email address for the nurse team to reach you on?",
			},
			NextTopic: TopicNurseEscalation,
			NextStage: StageContactCollection,
		}, nil
	}

	state.Consent.Status = ConsentDeclined
	state.Consent.DecidedAt = &now

	// Declining routes back to where the user was. Their details go nowhere.
	returnTopic := state.PreviousTopic
	if returnTopic == "" || !ValidTransition(returnTopic, StageExploring) {
		returnTopic = TopicHealthInformation
	}
	return HandlerResult{
		Reply: Reply{
			Text: "No problem at all, I won't share anything. " +
				"I'm still here if you'd like to keep asking questions.",
			Disclaimers: []string{compliance.DisclaimerShort},
		},
		NextTopic: returnTopic,
		NextStage: StageExploring,
	}, nil
}

// crisisSupportHandler takes over whenever safety analysis demands it. It
// never competes on confidence; the engine routes to it directly.
type crisisSupportHandler struct {
	responder *escalation.Responder
	escalator Escalator
}

func newCrisisSupportHandler(responder *escalation.Responder, escalator Escalator) *crisisSupportHandler {
	return &crisisSupportHandler{responder: responder, escalator: escalator}
}

func (h *crisisSupportHandler) Name() Topic { return TopicCrisisSupport }

func (h *crisisSupportHandler) SupportedStages() []Stage {
	return []Stage{
		StageGreeting, StageExploring, StageInformationDelivery,
		StageConsentRequest, StageContactCollection,
		StageEscalationPending, StageCrisisResponse, StageCompletion,
	}
}

func (h *crisisSupportHandler) CanHandle(state *ConversationState, message string) bool {
	return false // engine pre-empts; never selected by confidence
}

func (h *crisisSupportHandler) IntentConfidence(state *ConversationState, message string) float64 {
	return 0
}

func (h *crisisSupportHandler) Handle(ctx context.Context, in HandlerInput) (HandlerResult, error) {
	state := in.State

	// Safeguarding proceeds on vital interests; no consent step stands
	// between a crisis and the nurse team.
	if state.Consent == nil || state.Consent.Status != ConsentGranted {
		consent := CrisisConsent()
		state.Consent = &consent
	}

	event, err := h.escalator.CreateCrisisEscalation(ctx, state.ConversationID, state.UserID, in.Safety)
	if err != nil {
		return HandlerResult{}, fmt.Errorf("flow: create crisis escalation: %w", err)
	}

	resp := h.responder.Respond(in.Safety, in.Message)
	return HandlerResult{
		Reply: Reply{
			Text:              resp.Text,
			Disclaimers:       resp.Disclaimers,
			SupportResources:  resp.SupportResources,
			EmergencyContacts: resp.EmergencyContacts,
			ImmediateActions:  resp.ImmediateActions,
		},
		NextTopic:       TopicCrisisSupport,
		NextStage:       StageCrisisResponse,
		NurseEscalation: resp.NurseEscalation,
		EscalationID:    event.ID,
	}, nil
}

// endOfConversationHandler closes the conversation when the user says
// goodbye, moving to the terminal topic and stage.
type endOfConversationHandler struct {
	signals intentSignals
}

func newEndOfConversationHandler() *endOfConversationHandler {
	return &endOfConversationHandler{signals: intentSignals{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(goodbye|bye|see\s+you)\b`),
			regexp.MustCompile(`\b(that'?s|that\s+is)\s+(all|everything)\b`),
			regexp.MustCompile(`\bno\s+more\s+questions\b`),
			regexp.MustCompile(`\bi'?m\s+(done|finished)\b`),
		},
		patternConfidence: 0.9,
	}}
}

func (h *endOfConversationHandler) Name() Topic { return TopicEndOfConversation }

func (h *endOfConversationHandler) SupportedStages() []Stage {
	return []Stage{
		StageGreeting, StageExploring, StageInformationDelivery,
		StageConsentRequest, StageContactCollection,
		StageEscalationPending, StageCrisisResponse, StageCompletion,
	}
}

func (h *endOfConversationHandler) CanHandle(state *ConversationState, message string) bool {
	return defaultCanHandle(h, state, message)
}

func (h *endOfConversationHandler) IntentConfidence(state *ConversationState, message string) float64 {
	return h.signals.baseConfidence(message)
}

func (h *endOfConversationHandler) Handle(ctx context.Context, in HandlerInput) (HandlerResult, error) {
	return HandlerResult{
		Reply: Reply{
			Text: "Thank you for talking with me today. Take care of yourself. " +
				"The Ask Eve nurse team is on 0808 802 0019 if you need anything else, " +
				"and I'm always here if more questions come up.",
			Disclaimers: []string{compliance.DisclaimerShort},
		},
		NextTopic: TopicEndOfConversation,
		NextStage: StageCompletion,
	}, nil
}

// fallbackHandler catches messages no other handler claims.
type fallbackHandler struct{}

func newFallbackHandler() *fallbackHandler { return &fallbackHandler{} }

func (h *fallbackHandler) Name() Topic { return TopicFallback }

func (h *fallbackHandler) SupportedStages() []Stage {
	return []Stage{
		StageGreeting, StageExploring, StageInformationDelivery,
		StageConsentRequest, StageContactCollection,
		StageEscalationPending, StageCrisisResponse, StageCompletion,
	}
}

func (h *fallbackHandler) CanHandle(state *ConversationState, message string) bool {
	return true
}

func (h *fallbackHandler) IntentConfidence(state *ConversationState, message string) float64 {
	return 0
}

func (h *fallbackHandler) Handle(ctx context.Context, in HandlerInput) (HandlerResult, error) {
	return HandlerResult{
		Reply:     fallbackReply(),
		NextTopic: TopicFallback,
		NextStage: StageExploring,
	}, nil
}

// fallbackReply is also used by the engine when a handler fails.
func fallbackReply() Reply {
	return Reply{
		Text: "I'm sorry, I'm not sure I understood that. I can share information about " +
			"gynaecological health, or arrange for a nurse to call you back. " +
			"If you need medical help now, your GP or NHS 111 are the right places, " +
			"and you can find more at Eve Appeal.",
		Disclaimers: []string{compliance.DisclaimerShort},
		SuggestedActions: []string{
			"Ask about symptoms or screening",
			"Request a call back from a nurse",
		},
	}
}

var (
	contactPhoneRe = regexp.MustCompile(`(?:\+44\s?7|07)[0-9][0-9\s\-()]{7,}[0-9]`)
	contactEmailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	contactNameRe  = regexp.MustCompile(`(?i)\b(?:my name is|this is)\s+([a-zA-Z][a-zA-Z'\-]*(?:\s+[a-zA-Z][a-zA-Z'\-]*)?)`)
)

// parseContactDetails pulls a name, phone, and email out of a free-text
// message. Validation happens separately.
func parseContactDetails(message string) escalation.ContactDetails {
	var contact escalation.ContactDetails

	if m := contactEmailRe.FindString(message); m != "" {
		contact.Email = m
	}
	if m := contactPhoneRe.FindString(message); m != "" {
		contact.Phone = strings.TrimSpace(m)
	}

	if m := contactNameRe.FindStringSubmatch(message); len(m) > 1 {
		contact.Name = strings.TrimSpace(m[1])
	} else {
		// "Jo Smith, 07123 456 789" puts the name before the first comma.
		if idx := strings.Index(message, ","); idx > 0 {
			candidate := strings.TrimSpace(message[:idx])
			if candidate != "" && !strings.ContainsAny(candidate, "0123456789@") {
				contact.Name = candidate
			}
		}
	}
	return contact
}
