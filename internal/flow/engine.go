package flow

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/simonlevelai/askeve-platform/internal/compliance"
	"github.com/simonlevelai/askeve-platform/internal/content"
	"github.com/simonlevelai/askeve-platform/internal/escalation"
	"github.com/simonlevelai/askeve-platform/internal/observability/metrics"
	"github.com/simonlevelai/askeve-platform/internal/safety"
	"github.com/simonlevelai/askeve-platform/pkg/logging"
)

var flowTracer = otel.Tracer("askeve/conversation-flow")

// Result is what the caller gets back for one processed message.
type Result struct {
	ConversationID     string          `json:"conversation_id"`
	Topic              Topic           `json:"topic"`
	Stage              Stage           `json:"stage"`
	Severity           safety.Severity `json:"severity"`
	SafetyConfidence   float64         `json:"safety_confidence"`
	RequiresEscalation bool            `json:"requires_escalation"`
	NurseEscalation    bool            `json:"nurse_escalation"`
	EscalationID       string          `json:"escalation_id,omitempty"`
	ConversationEnded  bool            `json:"conversation_ended"`
	Reply              Reply           `json:"reply"`
}

// EngineConfig wires the conversation engine.
type EngineConfig struct {
	Store     StateStore
	Analyzer  *safety.Analyzer
	Responder *escalation.Responder
	Escalator Escalator
	Searcher  content.Searcher
	Auditor   *compliance.Auditor
	Logger    *logging.Logger
}

// Engine routes each message: safety analysis first, then handler
// selection by confidence, with crisis pre-empting everything else.
type Engine struct {
	store    StateStore
	analyzer *safety.Analyzer
	crisis   *crisisSupportHandler
	nurse    *nurseEscalationHandler
	handlers []TopicHandler
	fallback *fallbackHandler
	auditor  *compliance.Auditor
	logger   *logging.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	responder := cfg.Responder
	if responder == nil {
		responder = escalation.NewResponder()
	}
	nurse := newNurseEscalationHandler(cfg.Escalator)

	return &Engine{
		store:    cfg.Store,
		analyzer: cfg.Analyzer,
		crisis:   newCrisisSupportHandler(responder, cfg.Escalator),
		nurse:    nurse,
		handlers: []TopicHandler{
			newConsentCaptureHandler(),
			nurse,
			newHealthInformationHandler(cfg.Searcher),
			newEndOfConversationHandler(),
			newGreetingHandler(),
		},
		fallback: newFallbackHandler(),
		auditor:  cfg.Auditor,
		logger:   logger,
	}
}

// ProcessMessage runs one message through the pipeline. Processing for the
// same conversation is serialized by the store's per-key lock.
func (e *Engine) ProcessMessage(ctx context.Context, conversationID, userID, message string) (*Result, error) {
	ctx, span := flowTracer.Start(ctx, "flow.process_message")
	defer span.End()

	unlock := e.store.Lock(conversationID)
	defer unlock()

	state, err := e.loadOrCreate(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	// Safety runs before any routing, on context from before this message.
	safetyResult := e.analyzer.AnalyzeSafe(ctx, message, safety.ConversationContext{
		ConversationID: conversationID,
		UserID:         userID,
		RecentMessages: state.RecentMessages,
		RiskFlags:      state.RiskFlags,
	})

	metrics.AnalysisDuration.WithLabelValues(string(safetyResult.Severity)).
		Observe(safetyResult.AnalysisDuration.Seconds())
	if safetyResult.SLAViolation {
		metrics.SLAViolations.Inc()
		e.audit(ctx, compliance.EventSLAViolation, state, message, map[string]string{
			"duration": safetyResult.AnalysisDuration.String(),
		})
	}

	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("safety.severity", string(safetyResult.Severity)),
	)

	state.RecordMessage(message)
	for _, flag := range safetyResult.RiskFactors {
		state.AddRiskFlag(flag)
	}

	handler := e.selectHandler(state, message, safetyResult)
	if handler == e.crisis {
		e.audit(ctx, compliance.EventCrisisDetected, state, message, map[string]string{
			"severity":   string(safetyResult.Severity),
			"confidence": strconv.FormatFloat(safetyResult.Confidence, 'f', 2, 64),
		})
	}

	working := state.Clone()
	priorConsent := consentStatus(working)

	handlerResult, handlerErr := e.runHandler(ctx, handler, HandlerInput{
		State:   working,
		Message: message,
		Safety:  safetyResult,
	})
	if handlerErr == nil && !working.MoveTo(handlerResult.NextTopic, handlerResult.NextStage) {
		handlerErr = fmt.Errorf("flow: handler %s requested invalid transition %s/%s",
			handler.Name(), handlerResult.NextTopic, handlerResult.NextStage)
	}

	if handlerErr != nil {
		e.logger.Error("topic handler failed",
			"topic", string(handler.Name()),
			"conversation_id", conversationID,
			"error", handlerErr,
		)
		metrics.HandlerErrors.WithLabelValues(string(handler.Name())).Inc()
		e.audit(ctx, compliance.EventHandlerError, state, message, map[string]string{
			"topic": string(handler.Name()),
		})

		// The message is recorded but topic and stage stay where they were.
		if err := e.store.Save(ctx, state); err != nil {
			e.logger.Error("failed to persist state after handler error", "conversation_id", conversationID, "error", err)
		}
		return &Result{
			ConversationID:     conversationID,
			Topic:              state.Topic,
			Stage:              state.Stage,
			Severity:           safetyResult.Severity,
			SafetyConfidence:   safetyResult.Confidence,
			RequiresEscalation: safetyResult.RequiresEscalation,
			Reply:              fallbackReply(),
		}, nil
	}

	if handlerResult.Reply.ConsentRequest != nil {
		working.Consent = handlerResult.Reply.ConsentRequest
	}
	working.EscalationID = firstNonEmpty(handlerResult.EscalationID, working.EscalationID)

	if after := consentStatus(working); after != priorConsent {
		switch after {
		case ConsentGranted:
			e.audit(ctx, compliance.EventConsentGranted, working, "", map[string]string{
				"legal_basis": working.Consent.LegalBasis,
			})
		case ConsentDeclined:
			e.audit(ctx, compliance.EventConsentDeclined, working, "", nil)
		}
	}
	if handlerResult.EscalationID != "" {
		e.audit(ctx, compliance.EventEscalationCreated, working, "", map[string]string{
			"escalation_id": handlerResult.EscalationID,
		})
	}

	if err := e.store.Save(ctx, working); err != nil {
		return nil, fmt.Errorf("flow: persist state: %w", err)
	}

	metrics.ConversationMessages.WithLabelValues(string(working.Topic)).Inc()
	span.SetAttributes(attribute.String("flow.topic", string(working.Topic)))

	return &Result{
		ConversationID:     conversationID,
		Topic:              working.Topic,
		Stage:              working.Stage,
		Severity:           safetyResult.Severity,
		SafetyConfidence:   safetyResult.Confidence,
		RequiresEscalation: safetyResult.RequiresEscalation,
		NurseEscalation:    handlerResult.NurseEscalation,
		EscalationID:       handlerResult.EscalationID,
		ConversationEnded:  working.Topic == TopicEndOfConversation,
		Reply:              handlerResult.Reply,
	}, nil
}

// EndConversation deletes stored state for a conversation.
func (e *Engine) EndConversation(ctx context.Context, conversationID string) error {
	unlock := e.store.Lock(conversationID)
	defer unlock()
	return e.store.Delete(ctx, conversationID)
}

func (e *Engine) loadOrCreate(ctx context.Context, conversationID, userID string) (*ConversationState, error) {
	state, err := e.store.Get(ctx, conversationID)
	if errors.Is(err, ErrStateNotFound) {
		return NewConversationState(conversationID, userID), nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// selectHandler picks the handler for this message. An escalation-required
// verdict pre-empts confidence dispatch: crisis-level severity goes to the
// crisis handler, anything else escalation-worthy (a callback request) goes
// to the nurse handler even when its own intent signals missed. Ties
// between eligible handlers favor the current topic.
func (e *Engine) selectHandler(state *ConversationState, message string, safetyResult safety.SafetyResult) TopicHandler {
	if safetyResult.Severity.AtLeast(safety.SeverityHighConcern) {
		return e.crisis
	}
	if safetyResult.RequiresEscalation && consentStatus(state) != ConsentPending {
		// A pending consent request is resolved first; the consent
		// handler already leads into the callback flow.
		return e.nurse
	}

	var (
		best      TopicHandler
		bestScore float64
	)
	for _, h := range e.handlers {
		if !eligible(h, state, message) {
			continue
		}
		score := scoreHandler(h, state, message)
		switch {
		case best == nil, score > bestScore:
			best, bestScore = h, score
		case score == bestScore && h.Name() == state.Topic:
			best = h
		}
	}
	if best == nil {
		return e.fallback
	}
	return best
}

// runHandler converts handler panics into errors so one bad handler cannot
// take the conversation down.
func (e *Engine) runHandler(ctx context.Context, h TopicHandler, in HandlerInput) (result HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("flow: handler %s panicked: %v", h.Name(), r)
		}
	}()
	return h.Handle(ctx, in)
}

func (e *Engine) audit(ctx context.Context, eventType compliance.EventType, state *ConversationState, message string, detail map[string]string) {
	if e.auditor == nil {
		return
	}
	e.auditor.Record(ctx, eventType, state.ConversationID, state.UserID, message, detail)
}

func consentStatus(state *ConversationState) ConsentStatus {
	if state.Consent == nil {
		return ""
	}
	return state.Consent.Status
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
