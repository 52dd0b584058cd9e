package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/simonlevelai/askeve-platform/internal/content"
	"github.com/simonlevelai/askeve-platform/internal/escalation"
	"github.com/simonlevelai/askeve-platform/internal/flow"
	"github.com/simonlevelai/askeve-platform/internal/notify"
	"github.com/simonlevelai/askeve-platform/internal/safety"
)

type stubNotifier struct{}

func (stubNotifier) SendCrisisAlert(ctx context.Context, p notify.Payload) (*notify.DeliveryResult, error) {
	return &notify.DeliveryResult{Status: notify.StatusSent, MessageID: "msg-1"}, nil
}

type stubSearcher struct{}

func (stubSearcher) Search(ctx context.Context, query string, limit int) ([]content.Article, error) {
	return []content.Article{{
		Title:     "Cervical screening explained",
		Summary:   "What to expect at your appointment.",
		SourceURL: "https://eveappeal.org.uk/screening",
	}}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	store := escalation.NewMemoryEventStore()
	notifier := stubNotifier{}
	service := escalation.NewService(escalation.ServiceConfig{
		Store:      store,
		Notifier:   notifier,
		Dispatcher: escalation.NewSyncDispatcher(notifier, store),
	})

	engine := flow.NewEngine(flow.EngineConfig{
		Store:     flow.NewMemoryStateStore(),
		Analyzer:  safety.NewAnalyzer(safety.DefaultTriggerTable(), 500*time.Millisecond, nil),
		Escalator: service,
		Searcher:  stubSearcher{},
	})

	return New(&Config{
		FlowHandler:       flow.NewHandler(engine, nil),
		EscalationHandler: escalation.NewHandler(service, nil),
	})
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestPostMessage(t *testing.T) {
	r := newTestRouter(t)

	body, _ := json.Marshal(map[string]string{
		"conversation_id": "conv-1",
		"user_id":         "user-1",
		"message":         "Tell me about cervical screening",
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/message", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result flow.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Topic != flow.TopicHealthInformation {
		t.Errorf("topic = %s, want health_information", result.Topic)
	}
}

func TestPostMessageRequiresBody(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/message", bytes.NewReader([]byte(`{"message":""}`))))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestContactEscalationEndpoint(t *testing.T) {
	r := newTestRouter(t)

	body, _ := json.Marshal(map[string]interface{}{
		"conversation_id": "conv-1",
		"user_id":         "user-1",
		"severity":        "crisis",
		"contact": map[string]string{
			"name":  "Jo Smith",
			"phone": "07555 123 456",
		},
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/escalations/contact", bytes.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		EscalationID      string `json:"escalation_id"`
		Type              string `json:"type"`
		EstimatedCallback string `json:"estimated_callback"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Type != "crisis" {
		t.Errorf("type = %s, want crisis", resp.Type)
	}
	if resp.EstimatedCallback != "within 2 hours" {
		t.Errorf("estimated callback = %q, want within 2 hours", resp.EstimatedCallback)
	}

	// The created escalation is retrievable.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/escalations/"+resp.EscalationID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
}

func TestContactEscalationValidation(t *testing.T) {
	r := newTestRouter(t)

	body, _ := json.Marshal(map[string]interface{}{
		"conversation_id": "conv-1",
		"user_id":         "user-1",
		"contact": map[string]string{
			"name":  "Jo Smith",
			"phone": "123-invalid",
		},
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/escalations/contact", bytes.NewReader(body)))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestEscalationNotFound(t *testing.T) {
	r := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/escalations/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListPendingEscalations(t *testing.T) {
	r := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/escalations/pending", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("count = %d, want 0", resp.Count)
	}
}
