package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/simonlevelai/askeve-platform/pkg/logging"
)

// LogNotifier writes alerts to the log instead of a webhook. Used in local
// development when no webhook URL is configured.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendCrisisAlert(ctx context.Context, p Payload) (*DeliveryResult, error) {
	n.logger.Warn("crisis alert (log only, no webhook configured)",
		"escalation_id", p.EscalationID,
		"severity", p.Severity,
		"urgency", p.Urgency,
		"escalation_type", p.EscalationType,
	)
	return &DeliveryResult{
		Status:     StatusSent,
		MessageID:  uuid.NewString(),
		Recipients: []string{"log"},
		Attempts:   []AttemptRecord{{Attempt: 1}},
	}, nil
}
