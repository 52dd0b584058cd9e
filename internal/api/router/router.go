// Package router assembles the HTTP surface of the service.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/simonlevelai/askeve-platform/internal/escalation"
	"github.com/simonlevelai/askeve-platform/internal/flow"
	"github.com/simonlevelai/askeve-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger            *logging.Logger
	FlowHandler       *flow.Handler
	EscalationHandler *escalation.Handler
	MetricsHandler    http.Handler
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", healthz)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/message", cfg.FlowHandler.PostMessage)
		r.Delete("/{conversationID}", cfg.FlowHandler.DeleteConversation)
	})

	r.Route("/escalations", func(r chi.Router) {
		r.Post("/contact", cfg.EscalationHandler.PostContact)
		r.Get("/pending", cfg.EscalationHandler.ListPending)
		r.Get("/{escalationID}", cfg.EscalationHandler.GetEscalation)
	})

	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
