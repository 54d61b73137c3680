// Package notify provides best-effort outbound notifications. Delivery is
// asynchronous and failures never surface to callers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stakepact/stakepact/internal/config"
	"github.com/stakepact/stakepact/pkg/logger"
)

// Emitter delivers user-facing events.
type Emitter interface {
	EmitToUser(userID uint, event string, payload any)
}

// Event is the wire format posted to the webhook.
type Event struct {
	UserID  uint   `json:"user_id"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// WebhookEmitter posts events to a configured webhook URL.
type WebhookEmitter struct {
	webhookURL string
	enabled    bool
	client     *http.Client
	log        *logger.Logger
}

// NewWebhookEmitter creates a webhook emitter.
func NewWebhookEmitter(cfg *config.NotificationsConfig, log *logger.Logger) *WebhookEmitter {
	return &WebhookEmitter{
		webhookURL: cfg.WebhookURL,
		enabled:    cfg.Enabled,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// EmitToUser sends the event in a goroutine. Errors are logged and swallowed.
func (e *WebhookEmitter) EmitToUser(userID uint, event string, payload any) {
	if !e.enabled || e.webhookURL == "" {
		return
	}

	go func() {
		if err := e.send(Event{UserID: userID, Event: event, Payload: payload}); err != nil {
			e.log.Warn().
				Err(err).
				Uint("user_id", userID).
				Str("event", event).
				Msg("Failed to deliver notification")
		}
	}()
}

func (e *WebhookEmitter) send(event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NoopEmitter discards all events. Used when notifications are disabled and
// in tests.
type NoopEmitter struct{}

// EmitToUser discards the event.
func (NoopEmitter) EmitToUser(userID uint, event string, payload any) {}
