// Package compliance records the audit trail required for clinical safety
// reviews and GDPR accountability. Message content is never stored in the
// audit log, only a SHA-256 digest that lets reviewers correlate events
// with conversation exports.
package compliance

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simonlevelai/askeve-platform/pkg/logging"
)

// EventType labels an audit event.
type EventType string

const (
	EventCrisisDetected        EventType = "crisis_detected"
	EventEscalationCreated     EventType = "escalation_created"
	EventNotificationDelivered EventType = "notification_delivered"
	EventNotificationFailed    EventType = "notification_failed"
	EventConsentGranted        EventType = "consent_granted"
	EventConsentDeclined       EventType = "consent_declined"
	EventSLAViolation          EventType = "sla_violation"
	EventHandlerError          EventType = "handler_error"
)

// AuditEvent is one immutable audit record.
type AuditEvent struct {
	ID             string            `json:"id"`
	Type           EventType         `json:"type"`
	ConversationID string            `json:"conversation_id"`
	UserID         string            `json:"user_id"`
	MessageHash    string            `json:"message_hash,omitempty"`
	Detail         map[string]string `json:"detail,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// AuditStore persists audit events.
type AuditStore interface {
	Record(ctx context.Context, event AuditEvent) error
}

// HashMessage returns the hex SHA-256 digest of a message. The plaintext
// never reaches the audit log.
func HashMessage(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

// Auditor writes audit events through a store. Audit failures are logged
// and swallowed; losing an audit row must never break the user-facing path.
type Auditor struct {
	store  AuditStore
	logger *logging.Logger
}

func NewAuditor(store AuditStore, logger *logging.Logger) *Auditor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Auditor{store: store, logger: logger}
}

// Record writes one audit event. message may be empty for events with no
// associated user message.
func (a *Auditor) Record(ctx context.Context, eventType EventType, conversationID, userID, message string, detail map[string]string) {
	event := AuditEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		ConversationID: conversationID,
		UserID:         userID,
		Detail:         detail,
		CreatedAt:      time.Now().UTC(),
	}
	if message != "" {
		event.MessageHash = HashMessage(message)
	}
	if err := a.store.Record(ctx, event); err != nil {
		a.logger.Error("audit record failed",
			"event_type", eventType,
			"conversation_id", conversationID,
			"error", err,
		)
	}
}

// PostgresAuditStore stores audit events in Postgres.
type PostgresAuditStore struct {
	db *sql.DB
}

func NewPostgresAuditStore(db *sql.DB) *PostgresAuditStore {
	return &PostgresAuditStore{db: db}
}

var _ AuditStore = (*PostgresAuditStore)(nil)

func (s *PostgresAuditStore) Record(ctx context.Context, event AuditEvent) error {
	var detail []byte
	if len(event.Detail) > 0 {
		var err error
		detail, err = json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("compliance: marshal detail: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, conversation_id, user_id,
			message_hash, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, string(event.Type), event.ConversationID, event.UserID,
		nullIfEmpty(event.MessageHash), nullIfNoBytes(detail), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: insert audit event: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfNoBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// MemoryAuditStore keeps audit events in memory for tests and local runs.
type MemoryAuditStore struct {
	mu     sync.Mutex
	events []AuditEvent
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

var _ AuditStore = (*MemoryAuditStore)(nil)

func (s *MemoryAuditStore) Record(ctx context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemoryAuditStore) Events() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}
