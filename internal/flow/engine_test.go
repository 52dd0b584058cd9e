package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/simonlevelai/askeve-platform/internal/compliance"
	"github.com/simonlevelai/askeve-platform/internal/content"
	"github.com/simonlevelai/askeve-platform/internal/escalation"
	"github.com/simonlevelai/askeve-platform/internal/safety"
)

type mockEscalator struct {
	mu        sync.Mutex
	crisis    int
	callbacks []*escalation.ContactDetails
	failWith  error
}

func (m *mockEscalator) CreateCrisisEscalation(ctx context.Context, conversationID, userID string, result safety.SafetyResult) (*escalation.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.crisis++
	return &escalation.Event{ID: "esc-crisis-1", Type: escalation.TypeCrisis, Urgency: escalation.UrgencyImmediate}, nil
}

func (m *mockEscalator) CreateCallbackEscalation(ctx context.Context, conversationID, userID string, result safety.SafetyResult, contact *escalation.ContactDetails) (*escalation.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.callbacks = append(m.callbacks, contact)
	return &escalation.Event{
		ID:                "esc-callback-1",
		Type:              escalation.TypeNurseCallback,
		EstimatedCallback: "within 24-48 hours",
	}, nil
}

type mockSearcher struct {
	articles []content.Article
	err      error
}

func (m *mockSearcher) Search(ctx context.Context, query string, limit int) ([]content.Article, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.articles, nil
}

func cervicalArticles() []content.Article {
	return []content.Article{
		{
			Title:     "Cervical screening explained",
			Summary:   "What happens at a cervical screening appointment and why it matters.",
			SourceURL: "https://eveappeal.org.uk/gynae-cancers/cervical/screening",
			Score:     0.92,
		},
	}
}

func newTestEngine(t *testing.T, escalator Escalator, searcher content.Searcher) (*Engine, *compliance.MemoryAuditStore) {
	t.Helper()
	auditStore := compliance.NewMemoryAuditStore()
	engine := NewEngine(EngineConfig{
		Store:     NewMemoryStateStore(),
		Analyzer:  safety.NewAnalyzer(safety.DefaultTriggerTable(), 500*time.Millisecond, nil),
		Escalator: escalator,
		Searcher:  searcher,
		Auditor:   compliance.NewAuditor(auditStore, nil),
	})
	return engine, auditStore
}

func TestProcessMessageCrisis(t *testing.T) {
	escalator := &mockEscalator{}
	engine, auditStore := newTestEngine(t, escalator, &mockSearcher{})

	result, err := engine.ProcessMessage(context.Background(), "conv-1", "user-1", "I want to die")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if result.Severity != safety.SeverityCrisis {
		t.Errorf("severity = %s, want crisis", result.Severity)
	}
	if !strings.Contains(result.Reply.Text, "999") {
		t.Error("crisis reply must include 999")
	}
	if !strings.Contains(result.Reply.Text, "116 123") {
		t.Error("crisis reply must include the Samaritans number")
	}
	if !result.NurseEscalation {
		t.Error("crisis must escalate to the nurse team")
	}
	if result.Topic != TopicCrisisSupport || result.Stage != StageCrisisResponse {
		t.Errorf("state = %s/%s", result.Topic, result.Stage)
	}
	if escalator.crisis != 1 {
		t.Errorf("crisis escalations = %d, want 1", escalator.crisis)
	}

	types := auditTypes(auditStore)
	for _, want := range []compliance.EventType{
		compliance.EventCrisisDetected,
		compliance.EventConsentGranted,
		compliance.EventEscalationCreated,
	} {
		if !types[want] {
			t.Errorf("audit trail missing %s", want)
		}
	}
}

func TestProcessMessageCrisisUsesVitalInterests(t *testing.T) {
	engine, _ := newTestEngine(t, &mockEscalator{}, &mockSearcher{})

	if _, err := engine.ProcessMessage(context.Background(), "conv-1", "user-1", "I want to end my life"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	state, err := engine.store.Get(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Get state: %v", err)
	}
	if state.Consent == nil || state.Consent.LegalBasis != LegalBasisVitalInterests {
		t.Errorf("consent = %+v, want vital_interests basis", state.Consent)
	}
}

func TestProcessMessageHealthInformation(t *testing.T) {
	engine, _ := newTestEngine(t, &mockEscalator{}, &mockSearcher{articles: cervicalArticles()})

	result, err := engine.ProcessMessage(context.Background(), "conv-1", "user-1", "Tell me about cervical screening")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if result.Topic != TopicHealthInformation {
		t.Errorf("topic = %s, want health_information", result.Topic)
	}
	if len(result.Reply.Disclaimers) == 0 {
		t.Error("health information reply must carry a disclaimer")
	}
	if len(result.Reply.EmergencyContacts) != 0 {
		t.Error("routine question must not include emergency contacts")
	}
	if len(result.Reply.Articles) != 1 {
		t.Errorf("articles = %d, want 1", len(result.Reply.Articles))
	}
	if result.Severity != safety.SeverityGeneral {
		t.Errorf("severity = %s, want general", result.Severity)
	}
}

func TestNurseCallbackConsentFlow(t *testing.T) {
	escalator := &mockEscalator{}
	engine, auditStore := newTestEngine(t, escalator, &mockSearcher{})
	ctx := context.Background()

	// Asking for a nurse triggers a consent request, nothing is shared yet.
	result, err := engine.ProcessMessage(ctx, "conv-1", "user-1", "Can I speak to a nurse please?")
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if result.Topic != TopicNurseEscalation || result.Stage != StageConsentRequest {
		t.Fatalf("state = %s/%s, want nurse_escalation/consent_request", result.Topic, result.Stage)
	}
	if result.Reply.ConsentRequest == nil {
		t.Fatal("reply should carry the consent request")
	}
	if len(escalator.callbacks) != 0 {
		t.Fatal("no contact details may move before consent")
	}

	// Granting consent moves to contact collection.
	result, err = engine.ProcessMessage(ctx, "conv-1", "user-1", "Yes, that's fine")
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}
	if result.Stage != StageContactCollection {
		t.Fatalf("stage = %s, want contact_collection", result.Stage)
	}
	if len(escalator.callbacks) != 0 {
		t.Fatal("consent alone must not transmit contact details")
	}
	if !auditTypes(auditStore)[compliance.EventConsentGranted] {
		t.Error("audit trail missing consent_granted")
	}

	// Contact details complete the escalation.
	result, err = engine.ProcessMessage(ctx, "conv-1", "user-1", "Jo Smith, 07123 456 789")
	if err != nil {
		t.Fatalf("step 3: %v", err)
	}
	if result.Stage != StageEscalationPending {
		t.Fatalf("stage = %s, want escalation_pending", result.Stage)
	}
	if !result.NurseEscalation {
		t.Error("completed callback should flag nurse escalation")
	}
	if len(escalator.callbacks) != 1 {
		t.Fatalf("callbacks = %d, want 1", len(escalator.callbacks))
	}
	if escalator.callbacks[0].Name != "Jo Smith" {
		t.Errorf("contact name = %q", escalator.callbacks[0].Name)
	}
	if !strings.Contains(result.Reply.Text, "within 24-48 hours") {
		t.Errorf("reply should quote the callback window, got %q", result.Reply.Text)
	}
}

func TestCallbackRequestAlwaysReachesEscalationPath(t *testing.T) {
	escalator := &mockEscalator{}
	engine, _ := newTestEngine(t, escalator, &mockSearcher{})
	ctx := context.Background()

	// Phrased so the nurse handler's own intent signals miss it; the
	// analyzer's callback trigger must still route it to the nurse flow.
	result, err := engine.ProcessMessage(ctx, "conv-1", "user-1", "I need a phone call")
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if result.Severity != safety.SeverityEmotionalSupport {
		t.Fatalf("severity = %s, want emotional_support", result.Severity)
	}
	if !result.RequiresEscalation {
		t.Fatal("callback request must require escalation")
	}
	if result.Topic != TopicNurseEscalation || result.Stage != StageConsentRequest {
		t.Fatalf("state = %s/%s, want nurse_escalation/consent_request", result.Topic, result.Stage)
	}
	if result.Reply.ConsentRequest == nil {
		t.Fatal("reply should carry the consent request")
	}
	if len(escalator.callbacks) != 0 {
		t.Fatal("no contact details may move before consent")
	}

	if _, err := engine.ProcessMessage(ctx, "conv-1", "user-1", "Yes, go ahead"); err != nil {
		t.Fatalf("step 2: %v", err)
	}
	result, err = engine.ProcessMessage(ctx, "conv-1", "user-1", "Jo Smith, 07123 456 789")
	if err != nil {
		t.Fatalf("step 3: %v", err)
	}
	if result.Stage != StageEscalationPending {
		t.Fatalf("stage = %s, want escalation_pending", result.Stage)
	}
	if len(escalator.callbacks) != 1 {
		t.Fatalf("callbacks = %d, want 1", len(escalator.callbacks))
	}
}

func TestGoodbyeEndsConversation(t *testing.T) {
	engine, _ := newTestEngine(t, &mockEscalator{}, &mockSearcher{articles: cervicalArticles()})
	ctx := context.Background()

	result, err := engine.ProcessMessage(ctx, "conv-1", "user-1", "Tell me about cervical screening")
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if result.ConversationEnded {
		t.Fatal("an information question must not end the conversation")
	}

	result, err = engine.ProcessMessage(ctx, "conv-1", "user-1", "Thanks, that's everything - goodbye!")
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}
	if result.Topic != TopicEndOfConversation || result.Stage != StageCompletion {
		t.Fatalf("state = %s/%s, want end_of_conversation/completion", result.Topic, result.Stage)
	}
	if !result.ConversationEnded {
		t.Error("goodbye should mark the conversation ended")
	}
	if result.Reply.Text == "" {
		t.Error("farewell reply should not be empty")
	}
}

func TestConsentDeclineRoutesBack(t *testing.T) {
	escalator := &mockEscalator{}
	engine, auditStore := newTestEngine(t, escalator, &mockSearcher{articles: cervicalArticles()})
	ctx := context.Background()

	if _, err := engine.ProcessMessage(ctx, "conv-1", "user-1", "Tell me about cervical screening"); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if _, err := engine.ProcessMessage(ctx, "conv-1", "user-1", "Can I speak to a nurse please?"); err != nil {
		t.Fatalf("step 2: %v", err)
	}

	result, err := engine.ProcessMessage(ctx, "conv-1", "user-1", "No thanks")
	if err != nil {
		t.Fatalf("step 3: %v", err)
	}
	if result.Topic != TopicHealthInformation {
		t.Errorf("topic = %s, want routed back to health_information", result.Topic)
	}
	if len(escalator.callbacks) != 0 {
		t.Error("declined consent must not transmit anything")
	}

	state, _ := engine.store.Get(ctx, "conv-1")
	if state.Consent == nil || state.Consent.Status != ConsentDeclined {
		t.Errorf("consent = %+v, want declined", state.Consent)
	}
	if !auditTypes(auditStore)[compliance.EventConsentDeclined] {
		t.Error("audit trail missing consent_declined")
	}
}

func TestHandlerErrorLeavesStateUnchanged(t *testing.T) {
	engine, auditStore := newTestEngine(t, &mockEscalator{}, &mockSearcher{err: errors.New("content service down")})
	ctx := context.Background()

	result, err := engine.ProcessMessage(ctx, "conv-1", "user-1", "Tell me about cervical screening")
	if err != nil {
		t.Fatalf("ProcessMessage should not fail on handler error: %v", err)
	}

	if result.Topic != TopicConversationStart || result.Stage != StageGreeting {
		t.Errorf("state = %s/%s, want unchanged conversation_start/greeting", result.Topic, result.Stage)
	}
	if !strings.Contains(result.Reply.Text, "111") || !strings.Contains(result.Reply.Text, "GP") {
		t.Errorf("fallback reply should point at GP and NHS 111, got %q", result.Reply.Text)
	}
	if !auditTypes(auditStore)[compliance.EventHandlerError] {
		t.Error("audit trail missing handler_error")
	}

	state, err := engine.store.Get(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Get state: %v", err)
	}
	if state.Topic != TopicConversationStart {
		t.Errorf("stored topic = %s, want unchanged", state.Topic)
	}
	if state.MessageCount != 1 {
		t.Errorf("message count = %d, message should still be recorded", state.MessageCount)
	}
}

func TestGreetingThenFallback(t *testing.T) {
	engine, _ := newTestEngine(t, &mockEscalator{}, &mockSearcher{})
	ctx := context.Background()

	result, err := engine.ProcessMessage(ctx, "conv-1", "user-1", "Hello!")
	if err != nil {
		t.Fatalf("greeting: %v", err)
	}
	if result.Topic != TopicGreeting {
		t.Errorf("topic = %s, want greeting", result.Topic)
	}

	result, err = engine.ProcessMessage(ctx, "conv-1", "user-1", "qwxzyq blorp")
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if result.Topic != TopicFallback {
		t.Errorf("topic = %s, want fallback", result.Topic)
	}
}

func TestProcessMessageDeterministicReplay(t *testing.T) {
	messages := []string{
		"Hello!",
		"Tell me about cervical screening",
		"Can I speak to a nurse please?",
		"Yes, that's fine",
		"Jo Smith, 07123 456 789",
	}

	run := func() []string {
		engine, _ := newTestEngine(t, &mockEscalator{}, &mockSearcher{articles: cervicalArticles()})
		var trace []string
		for _, msg := range messages {
			result, err := engine.ProcessMessage(context.Background(), "conv-1", "user-1", msg)
			if err != nil {
				t.Fatalf("replay %q: %v", msg, err)
			}
			trace = append(trace, string(result.Topic)+"/"+string(result.Stage))
		}
		return trace
	}

	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("replay diverged at step %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestEndConversation(t *testing.T) {
	engine, _ := newTestEngine(t, &mockEscalator{}, &mockSearcher{})
	ctx := context.Background()

	if _, err := engine.ProcessMessage(ctx, "conv-1", "user-1", "Hello!"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if err := engine.EndConversation(ctx, "conv-1"); err != nil {
		t.Fatalf("EndConversation: %v", err)
	}
	if _, err := engine.store.Get(ctx, "conv-1"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("state should be deleted, err = %v", err)
	}
}

func auditTypes(store *compliance.MemoryAuditStore) map[compliance.EventType]bool {
	types := make(map[compliance.EventType]bool)
	for _, event := range store.Events() {
		types[event.Type] = true
	}
	return types
}
