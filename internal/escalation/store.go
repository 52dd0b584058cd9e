package escalation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrEventNotFound is returned when no event exists with the given ID.
var ErrEventNotFound = errors.New("event not found")

// EventStore persists escalation events and their delivery state.
type EventStore interface {
	Insert(ctx context.Context, event *Event) error
	MarkNotified(ctx context.Context, id string, at time.Time) error
	MarkDeliveryFailed(ctx context.Context, id string, reason string) error
	GetByID(ctx context.Context, id string) (*Event, error)
	ListPending(ctx context.Context, limit int) ([]*Event, error)
}

// PostgresEventStore stores escalation events in Postgres.
type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

var _ EventStore = (*PostgresEventStore)(nil)

func (s *PostgresEventStore) Insert(ctx context.Context, event *Event) error {
	triggers, err := json.Marshal(event.Triggers)
	if err != nil {
		return fmt.Errorf("escalation: marshal triggers: %w", err)
	}
	var contact []byte
	if event.Contact != nil {
		contact, err = json.Marshal(event.Contact)
		if err != nil {
			return fmt.Errorf("escalation: marshal contact: %w", err)
		}
	}

	query := `
		INSERT INTO escalation_events (
			id, conversation_id, user_id, type, urgency, severity,
			summary, triggers, contact, estimated_callback,
			delivery_status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.db.ExecContext(ctx, query,
		event.ID, event.ConversationID, event.UserID,
		string(event.Type), string(event.Urgency), event.Severity,
		event.Summary, triggers, nullBytes(contact), nullString(event.EstimatedCallback),
		event.DeliveryStatus, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("escalation: insert event: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) MarkNotified(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE escalation_events
		SET delivery_status = $1, notified_at = $2, delivery_error = NULL
		WHERE id = $3`

	res, err := s.db.ExecContext(ctx, query, DeliveryNotified, at, id)
	if err != nil {
		return fmt.Errorf("escalation: mark notified: %w", err)
	}
	return checkRowUpdated(res, id)
}

func (s *PostgresEventStore) MarkDeliveryFailed(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE escalation_events
		SET delivery_status = $1, delivery_error = $2
		WHERE id = $3`

	res, err := s.db.ExecContext(ctx, query, DeliveryFailed, reason, id)
	if err != nil {
		return fmt.Errorf("escalation: mark delivery failed: %w", err)
	}
	return checkRowUpdated(res, id)
}

func (s *PostgresEventStore) GetByID(ctx context.Context, id string) (*Event, error) {
	query := `
		SELECT id, conversation_id, user_id, type, urgency, severity,
		       summary, triggers, contact, estimated_callback,
		       delivery_status, delivery_error, notified_at, created_at
		FROM escalation_events
		WHERE id = $1`

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("escalation: event %s: %w", id, ErrEventNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("escalation: get event: %w", err)
	}
	return event, nil
}

func (s *PostgresEventStore) ListPending(ctx context.Context, limit int) ([]*Event, error) {
	query := `
		SELECT id, conversation_id, user_id, type, urgency, severity,
		       summary, triggers, contact, estimated_callback,
		       delivery_status, delivery_error, notified_at, created_at
		FROM escalation_events
		WHERE delivery_status IN ($1, $2)
		ORDER BY created_at ASC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, DeliveryPending, DeliveryFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("escalation: list pending: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("escalation: scan pending event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escalation: iterate pending events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		event     Event
		triggers  []byte
		contact   []byte
		callback  sql.NullString
		deliveryE sql.NullString
		notified  sql.NullTime
	)
	err := row.Scan(
		&event.ID, &event.ConversationID, &event.UserID,
		(*string)(&event.Type), (*string)(&event.Urgency), &event.Severity,
		&event.Summary, &triggers, &contact, &callback,
		&event.DeliveryStatus, &deliveryE, &notified, &event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(triggers) > 0 {
		if err := json.Unmarshal(triggers, &event.Triggers); err != nil {
			return nil, fmt.Errorf("unmarshal triggers: %w", err)
		}
	}
	if len(contact) > 0 {
		event.Contact = &ContactDetails{}
		if err := json.Unmarshal(contact, event.Contact); err != nil {
			return nil, fmt.Errorf("unmarshal contact: %w", err)
		}
	}
	if callback.Valid {
		event.EstimatedCallback = callback.String
	}
	if deliveryE.Valid {
		event.DeliveryError = deliveryE.String
	}
	if notified.Valid {
		t := notified.Time
		event.NotifiedAt = &t
	}
	return &event, nil
}

func checkRowUpdated(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("escalation: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("escalation: event %s: %w", id, ErrEventNotFound)
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// MemoryEventStore is an in-memory EventStore for tests and local runs.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[string]*Event
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[string]*Event)}
}

var _ EventStore = (*MemoryEventStore)(nil)

func (s *MemoryEventStore) Insert(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[event.ID]; exists {
		return fmt.Errorf("escalation: event %s already exists", event.ID)
	}
	clone := *event
	s.events[event.ID] = &clone
	return nil
}

func (s *MemoryEventStore) MarkNotified(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return fmt.Errorf("escalation: event %s: %w", id, ErrEventNotFound)
	}
	event.DeliveryStatus = DeliveryNotified
	event.DeliveryError = ""
	t := at
	event.NotifiedAt = &t
	return nil
}

func (s *MemoryEventStore) MarkDeliveryFailed(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return fmt.Errorf("escalation: event %s: %w", id, ErrEventNotFound)
	}
	event.DeliveryStatus = DeliveryFailed
	event.DeliveryError = reason
	return nil
}

func (s *MemoryEventStore) GetByID(ctx context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("escalation: event %s: %w", id, ErrEventNotFound)
	}
	clone := *event
	return &clone, nil
}

func (s *MemoryEventStore) ListPending(ctx context.Context, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var events []*Event
	for _, event := range s.events {
		if event.DeliveryStatus == DeliveryPending || event.DeliveryStatus == DeliveryFailed {
			clone := *event
			events = append(events, &clone)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
