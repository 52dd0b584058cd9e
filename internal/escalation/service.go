package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/simonlevelai/askeve-platform/internal/notify"
	"github.com/simonlevelai/askeve-platform/internal/observability/metrics"
	"github.com/simonlevelai/askeve-platform/internal/safety"
	"github.com/simonlevelai/askeve-platform/pkg/logging"
)

var escalationTracer = otel.Tracer("askeve/escalation")

// Notifier delivers an escalation alert to the nurse team.
type Notifier interface {
	SendCrisisAlert(ctx context.Context, p notify.Payload) (*notify.DeliveryResult, error)
}

// Dispatcher hands an event off for asynchronous delivery.
type Dispatcher interface {
	Dispatch(event *Event) error
}

// ServiceConfig wires the escalation service.
type ServiceConfig struct {
	Store         EventStore
	Notifier      Notifier
	Dispatcher    Dispatcher
	BusinessStart int
	BusinessEnd   int
	Now           func() time.Time
	Logger        *logging.Logger
}

// Service records escalation events and routes them to the nurse team.
// Events are always persisted before any delivery attempt.
type Service struct {
	store         EventStore
	notifier      Notifier
	dispatcher    Dispatcher
	businessStart int
	businessEnd   int
	now           func() time.Time
	logger        *logging.Logger
}

func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	businessStart, businessEnd := cfg.BusinessStart, cfg.BusinessEnd
	if businessStart == 0 && businessEnd == 0 {
		businessStart, businessEnd = 9, 17
	}
	return &Service{
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		dispatcher:    cfg.Dispatcher,
		businessStart: businessStart,
		businessEnd:   businessEnd,
		now:           now,
		logger:        logger,
	}
}

// CreateCrisisEscalation records a crisis detected in conversation and
// dispatches the nurse alert asynchronously. The user's reply never waits
// on webhook delivery.
func (s *Service) CreateCrisisEscalation(ctx context.Context, conversationID, userID string, result safety.SafetyResult) (*Event, error) {
	ctx, span := escalationTracer.Start(ctx, "escalation.create_crisis")
	defer span.End()

	urgency := UrgencyForSeverity(string(result.Severity))
	event := s.newEvent(conversationID, userID, TypeCrisis, urgency, result)
	event.Summary = crisisSummary(result)

	span.SetAttributes(
		attribute.String("escalation.id", event.ID),
		attribute.String("escalation.urgency", string(urgency)),
	)

	if err := s.store.Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("escalation: persist crisis event: %w", err)
	}
	metrics.EscalationsTotal.WithLabelValues(string(event.Type), string(event.Urgency)).Inc()

	s.logger.Info("crisis escalation created",
		"escalation_id", event.ID,
		"conversation_id", conversationID,
		"urgency", urgency,
	)

	if err := s.dispatcher.Dispatch(event); err != nil {
		// The event is already persisted; a full dispatch queue must not
		// drop it. Mark it for the pending sweep instead.
		s.logger.Error("crisis alert dispatch failed",
			"escalation_id", event.ID,
			"error", err,
		)
		if markErr := s.store.MarkDeliveryFailed(ctx, event.ID, err.Error()); markErr != nil {
			s.logger.Error("failed to record dispatch failure", "escalation_id", event.ID, "error", markErr)
		}
	}
	return event, nil
}

// CreateCallbackEscalation records a nurse callback request and dispatches
// the alert asynchronously. Returns the event with its estimated callback
// window populated.
func (s *Service) CreateCallbackEscalation(ctx context.Context, conversationID, userID string, result safety.SafetyResult, contact *ContactDetails) (*Event, error) {
	ctx, span := escalationTracer.Start(ctx, "escalation.create_callback")
	defer span.End()

	if contact != nil {
		if verrs := contact.Validate(); len(verrs) > 0 {
			return nil, verrs[0]
		}
	}

	urgency := UrgencyForSeverity(string(result.Severity))
	event := s.newEvent(conversationID, userID, TypeNurseCallback, urgency, result)
	event.Contact = contact
	event.Summary = "User requested a callback from the nurse team"
	event.EstimatedCallback = EstimateCallback(event.Type, urgency, s.now().Hour(), s.businessStart, s.businessEnd)

	span.SetAttributes(attribute.String("escalation.id", event.ID))

	if err := s.store.Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("escalation: persist callback event: %w", err)
	}
	metrics.EscalationsTotal.WithLabelValues(string(event.Type), string(event.Urgency)).Inc()

	s.logger.Info("callback escalation created",
		"escalation_id", event.ID,
		"conversation_id", conversationID,
		"estimated_callback", event.EstimatedCallback,
	)

	if err := s.dispatcher.Dispatch(event); err != nil {
		s.logger.Error("callback alert dispatch failed", "escalation_id", event.ID, "error", err)
		if markErr := s.store.MarkDeliveryFailed(ctx, event.ID, err.Error()); markErr != nil {
			s.logger.Error("failed to record dispatch failure", "escalation_id", event.ID, "error", markErr)
		}
	}
	return event, nil
}

// ProcessContactEscalation handles an explicit contact form submission.
// Contact details are validated first and delivery runs synchronously so the
// caller learns whether the nurse team was actually reached.
func (s *Service) ProcessContactEscalation(ctx context.Context, conversationID, userID string, contact ContactDetails, result safety.SafetyResult) (*Event, *notify.DeliveryResult, error) {
	ctx, span := escalationTracer.Start(ctx, "escalation.process_contact")
	defer span.End()

	if verrs := contact.Validate(); len(verrs) > 0 {
		return nil, nil, verrs[0]
	}

	urgency := UrgencyForSeverity(string(result.Severity))
	escType := TypeGeneralSupport
	if result.Severity.AtLeast(safety.SeverityHighConcern) {
		escType = TypeCrisis
	} else if result.HasCategory(safety.CategoryCallbackRequest) {
		escType = TypeNurseCallback
	}

	event := s.newEvent(conversationID, userID, escType, urgency, result)
	event.Contact = &contact
	event.Summary = fmt.Sprintf("Contact request from %s", contact.Name)
	event.EstimatedCallback = EstimateCallback(escType, urgency, s.now().Hour(), s.businessStart, s.businessEnd)

	span.SetAttributes(
		attribute.String("escalation.id", event.ID),
		attribute.String("escalation.type", string(escType)),
	)

	if err := s.store.Insert(ctx, event); err != nil {
		return nil, nil, fmt.Errorf("escalation: persist contact event: %w", err)
	}
	metrics.EscalationsTotal.WithLabelValues(string(event.Type), string(event.Urgency)).Inc()

	delivery, err := s.notifier.SendCrisisAlert(ctx, PayloadForEvent(event))
	if delivery != nil {
		metrics.NotificationDeliveries.WithLabelValues(delivery.Status).Inc()
	}
	if err != nil {
		if markErr := s.store.MarkDeliveryFailed(ctx, event.ID, err.Error()); markErr != nil {
			s.logger.Error("failed to record delivery failure", "escalation_id", event.ID, "error", markErr)
		}
		return event, delivery, fmt.Errorf("escalation: notify nurse team: %w", err)
	}
	if markErr := s.store.MarkNotified(ctx, event.ID, s.now().UTC()); markErr != nil {
		s.logger.Error("failed to record delivery success", "escalation_id", event.ID, "error", markErr)
	}

	s.logger.Info("contact escalation delivered",
		"escalation_id", event.ID,
		"type", escType,
		"estimated_callback", event.EstimatedCallback,
	)
	return event, delivery, nil
}

// GetEscalation returns a persisted escalation event by ID.
func (s *Service) GetEscalation(ctx context.Context, id string) (*Event, error) {
	return s.store.GetByID(ctx, id)
}

// PendingEscalations lists events still awaiting successful delivery.
func (s *Service) PendingEscalations(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListPending(ctx, limit)
}

func (s *Service) newEvent(conversationID, userID string, escType Type, urgency Urgency, result safety.SafetyResult) *Event {
	return &Event{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         userID,
		Type:           escType,
		Urgency:        urgency,
		Severity:       string(result.Severity),
		Triggers:       triggerIDs(result),
		DeliveryStatus: DeliveryPending,
		CreatedAt:      s.now().UTC(),
	}
}

// PayloadForEvent projects an event onto the notification wire shape.
func PayloadForEvent(event *Event) notify.Payload {
	p := notify.Payload{
		EscalationID:     event.ID,
		Severity:         event.Severity,
		Urgency:          string(event.Urgency),
		UserID:           event.UserID,
		Summary:          event.Summary,
		Triggers:         event.Triggers,
		EscalationType:   string(event.Type),
		RequiresCallback: event.Type == TypeNurseCallback || event.Type == TypeCrisis,
	}
	if event.Contact != nil {
		p.ContactName = event.Contact.Name
		p.ContactPhone = event.Contact.Phone
		p.ContactEmail = event.Contact.Email
	}
	return p
}

func triggerIDs(result safety.SafetyResult) []string {
	if len(result.Matches) == 0 {
		return nil
	}
	ids := make([]string, 0, len(result.Matches))
	for _, m := range result.Matches {
		ids = append(ids, m.TriggerID)
	}
	return ids
}

func crisisSummary(result safety.SafetyResult) string {
	if len(result.Matches) == 0 {
		return "Crisis indicators detected in conversation"
	}
	return fmt.Sprintf("Crisis indicators detected (%s)", result.Matches[0].Category)
}
