package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func eventColumns() []string {
	return []string{
		"id", "conversation_id", "user_id", "type", "urgency", "severity",
		"summary", "triggers", "contact", "estimated_callback",
		"delivery_status", "delivery_error", "notified_at", "created_at",
	}
}

func TestPostgresInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresEventStore(db)
	event := &Event{
		ID:             "esc-1",
		ConversationID: "conv-1",
		UserID:         "user-1",
		Type:           TypeCrisis,
		Urgency:        UrgencyImmediate,
		Severity:       "crisis",
		Summary:        "Crisis indicators detected",
		Triggers:       []string{"crisis-want-to-die"},
		DeliveryStatus: DeliveryPending,
		CreatedAt:      time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO escalation_events").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Insert(context.Background(), event); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPostgresMarkNotified(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresEventStore(db)
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE escalation_events").
		WithArgs(DeliveryNotified, at, "esc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.MarkNotified(context.Background(), "esc-1", at); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPostgresMarkNotifiedMissingEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresEventStore(db)

	mock.ExpectExec("UPDATE escalation_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.MarkNotified(context.Background(), "missing", time.Now()); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestPostgresGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresEventStore(db)
	created := time.Now().UTC().Truncate(time.Second)

	rows := sqlmock.NewRows(eventColumns()).AddRow(
		"esc-1", "conv-1", "user-1", "nurse_callback", "high", "emotional_support",
		"User requested a callback", []byte(`["callback-speak-to-nurse"]`),
		[]byte(`{"name":"Jo Smith","phone":"07123456789"}`), "within 24 hours",
		DeliveryPending, nil, nil, created,
	)
	mock.ExpectQuery("SELECT (.+) FROM escalation_events").
		WithArgs("esc-1").
		WillReturnRows(rows)

	event, err := store.GetByID(context.Background(), "esc-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if event.Type != TypeNurseCallback || event.Urgency != UrgencyHigh {
		t.Errorf("event = %s/%s", event.Type, event.Urgency)
	}
	if len(event.Triggers) != 1 {
		t.Errorf("triggers = %v", event.Triggers)
	}
	if event.Contact == nil || event.Contact.Name != "Jo Smith" {
		t.Errorf("contact = %+v", event.Contact)
	}
	if event.EstimatedCallback != "within 24 hours" {
		t.Errorf("estimated callback = %q", event.EstimatedCallback)
	}
	if event.NotifiedAt != nil {
		t.Error("notified_at should be nil for a pending event")
	}
}

func TestPostgresListPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgresEventStore(db)
	created := time.Now().UTC()

	rows := sqlmock.NewRows(eventColumns()).
		AddRow("esc-1", "conv-1", "user-1", "crisis", "immediate", "crisis",
			"s", nil, nil, nil, DeliveryPending, nil, nil, created).
		AddRow("esc-2", "conv-2", "user-2", "crisis", "immediate", "crisis",
			"s", nil, nil, nil, DeliveryFailed, "webhook down", nil, created.Add(time.Second))

	mock.ExpectQuery("SELECT (.+) FROM escalation_events").
		WithArgs(DeliveryPending, DeliveryFailed, 10).
		WillReturnRows(rows)

	events, err := store.ListPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[1].DeliveryError != "webhook down" {
		t.Errorf("delivery error = %q", events[1].DeliveryError)
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := context.Background()

	event := &Event{ID: "esc-1", DeliveryStatus: DeliveryPending, CreatedAt: time.Now()}
	if err := store.Insert(ctx, event); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Insert(ctx, event); err == nil {
		t.Fatal("duplicate insert should fail")
	}

	if err := store.MarkDeliveryFailed(ctx, "esc-1", "boom"); err != nil {
		t.Fatalf("MarkDeliveryFailed: %v", err)
	}
	pending, _ := store.ListPending(ctx, 0)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	if err := store.MarkNotified(ctx, "esc-1", time.Now()); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	got, err := store.GetByID(ctx, "esc-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.DeliveryStatus != DeliveryNotified || got.DeliveryError != "" {
		t.Errorf("event = %+v", got)
	}
	pending, _ = store.ListPending(ctx, 0)
	if len(pending) != 0 {
		t.Errorf("pending after notify = %d, want 0", len(pending))
	}

	if _, err := store.GetByID(ctx, "missing"); err == nil {
		t.Error("expected not-found error")
	}
}

func TestMemoryStoreListPendingOrderAndLimit(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := context.Background()
	base := time.Now()

	offsets := map[string]time.Duration{"a": 0, "b": time.Second, "c": 2 * time.Second}
	for _, id := range []string{"c", "a", "b"} {
		if err := store.Insert(ctx, &Event{ID: id, DeliveryStatus: DeliveryPending, CreatedAt: base.Add(offsets[id])}); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	events, err := store.ListPending(ctx, 2)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(events) != 2 || events[0].ID != "a" || events[1].ID != "b" {
		t.Errorf("events = %+v, want a then b", events)
	}
}
