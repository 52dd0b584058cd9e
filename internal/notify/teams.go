// Package notify delivers escalation alerts to the nurse team's webhook
// channel with bounded retries and a per-attempt audit trail.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simonlevelai/askeve-platform/pkg/logging"
)

// Payload is the wire projection of an escalation event.
type Payload struct {
	EscalationID     string
	Severity         string
	Urgency          string // immediate, high, medium, low
	UserID           string
	Summary          string
	Triggers         []string
	EscalationType   string
	RequiresCallback bool
	ContactName      string
	ContactPhone     string
	ContactEmail     string
}

// AttemptRecord is one entry in a delivery's audit trail.
type AttemptRecord struct {
	Attempt int       `json:"attempt"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}

// DeliveryResult reports the outcome of a webhook delivery.
type DeliveryResult struct {
	Status     string          `json:"status"` // "sent" or "failed"
	MessageID  string          `json:"message_id"`
	Recipients []string        `json:"recipients"`
	RetryCount int             `json:"retry_count"`
	Attempts   []AttemptRecord `json:"attempts"`
}

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// webhookAck is the exact body a Teams incoming webhook returns on success.
// Anything else, HTTP 200 included, is a failed delivery.
const webhookAck = "1"

// maxTriggerFacts caps how many triggers appear on the alert card.
const maxTriggerFacts = 5

// Config controls the Teams notifier.
type Config struct {
	WebhookURL   string
	DashboardURL string
	MaxAttempts  int
	RetryDelay   time.Duration
	HTTPClient   *http.Client
	Logger       *logging.Logger
}

// TeamsNotifier posts MessageCard alerts to an incoming webhook.
type TeamsNotifier struct {
	webhookURL   string
	dashboardURL string
	maxAttempts  int
	retryDelay   time.Duration
	httpClient   *http.Client
	logger       *logging.Logger
}

// NewTeamsNotifier creates a notifier with sane defaults.
func NewTeamsNotifier(cfg Config) (*TeamsNotifier, error) {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil, errors.New("notify: webhook URL is required")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 1 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &TeamsNotifier{
		webhookURL:   cfg.WebhookURL,
		dashboardURL: strings.TrimRight(cfg.DashboardURL, "/"),
		maxAttempts:  maxAttempts,
		retryDelay:   retryDelay,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// SendCrisisAlert delivers the payload, retrying transient failures up to
// the configured attempt limit. Delivery is confirmed by the webhook's
// acknowledgment body, not transport status alone.
func (n *TeamsNotifier) SendCrisisAlert(ctx context.Context, p Payload) (*DeliveryResult, error) {
	body, err := buildMessageCard(p, n.dashboardURL)
	if err != nil {
		return nil, fmt.Errorf("notify: build alert card: %w", err)
	}

	result := &DeliveryResult{
		MessageID:  uuid.NewString(),
		Recipients: []string{"nurse-team"},
	}

	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		attemptErr := n.post(ctx, body)
		result.Attempts = append(result.Attempts, AttemptRecord{
			Attempt: attempt,
			At:      time.Now().UTC(),
			Error:   errString(attemptErr),
		})

		if attemptErr == nil {
			result.Status = StatusSent
			result.RetryCount = attempt - 1
			n.logger.Info("crisis alert delivered",
				"escalation_id", p.EscalationID,
				"message_id", result.MessageID,
				"retry_count", result.RetryCount,
			)
			return result, nil
		}

		n.logger.Warn("crisis alert delivery attempt failed",
			"escalation_id", p.EscalationID,
			"attempt", attempt,
			"max_attempts", n.maxAttempts,
			"error", attemptErr,
		)

		if attempt < n.maxAttempts {
			if sleepErr := n.sleep(ctx); sleepErr != nil {
				result.Status = StatusFailed
				result.RetryCount = attempt
				return result, fmt.Errorf("notify: delivery interrupted for escalation %s after %d attempt(s): %w", p.EscalationID, attempt, sleepErr)
			}
		}
	}

	result.Status = StatusFailed
	result.RetryCount = n.maxAttempts
	err = fmt.Errorf("notify: crisis alert for escalation %s failed after %d attempts", p.EscalationID, n.maxAttempts)
	n.logger.Error("crisis alert delivery exhausted",
		"escalation_id", p.EscalationID,
		"attempts", n.maxAttempts,
	)
	return result, err
}

func (n *TeamsNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	if strings.TrimSpace(string(data)) != webhookAck {
		return fmt.Errorf("webhook acknowledgment mismatch: %q", truncate(string(data), 64))
	}
	return nil
}

func (n *TeamsNotifier) sleep(ctx context.Context) error {
	timer := time.NewTimer(n.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
