package escalation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/simonlevelai/askeve-platform/internal/safety"
	"github.com/simonlevelai/askeve-platform/pkg/logging"
)

// Handler exposes escalation operations over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type contactRequest struct {
	ConversationID string         `json:"conversation_id"`
	UserID         string         `json:"user_id"`
	Severity       string         `json:"severity"`
	Contact        ContactDetails `json:"contact"`
}

type contactResponse struct {
	EscalationID      string `json:"escalation_id"`
	Type              Type   `json:"type"`
	EstimatedCallback string `json:"estimated_callback,omitempty"`
	DeliveryStatus    string `json:"delivery_status"`
}

// PostContact handles POST /escalations/contact. The nurse team is notified
// before the response is written; a delivery failure is surfaced to the
// caller so the user is not silently left waiting.
func (h *Handler) PostContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result := safety.SafetyResult{Severity: safety.Severity(req.Severity)}
	if result.Severity == "" {
		result.Severity = safety.SeverityGeneral
	}

	event, delivery, err := h.service.ProcessContactEscalation(r.Context(), req.ConversationID, req.UserID, req.Contact, result)
	var verr ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusUnprocessableEntity, verr.Error())
		return
	}
	if err != nil {
		h.logger.Error("contact escalation failed",
			"conversation_id", req.ConversationID,
			"error", err,
		)
		status := DeliveryFailed
		if event != nil && delivery != nil {
			writeJSON(w, http.StatusBadGateway, contactResponse{
				EscalationID:      event.ID,
				Type:              event.Type,
				EstimatedCallback: event.EstimatedCallback,
				DeliveryStatus:    status,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to process escalation")
		return
	}

	writeJSON(w, http.StatusCreated, contactResponse{
		EscalationID:      event.ID,
		Type:              event.Type,
		EstimatedCallback: event.EstimatedCallback,
		DeliveryStatus:    DeliveryNotified,
	})
}

// GetEscalation handles GET /escalations/{escalationID}.
func (h *Handler) GetEscalation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "escalationID")
	event, err := h.service.GetEscalation(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "escalation not found")
			return
		}
		h.logger.Error("get escalation failed", "escalation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load escalation")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ListPending handles GET /escalations/pending for the nurse dashboard.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	events, err := h.service.PendingEscalations(r.Context(), limit)
	if err != nil {
		h.logger.Error("list pending escalations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list escalations")
		return
	}
	if events == nil {
		events = []*Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"escalations": events,
		"count":       len(events),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
