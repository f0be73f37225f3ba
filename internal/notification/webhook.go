// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

const webhookMaxDelay = 30 * time.Second

// WebhookChannel POSTs events as JSON to a configured URL, retrying
// with exponential backoff capped at webhookMaxDelay.
type WebhookChannel struct {
	url           string
	retryAttempts int
	retryDelay    time.Duration
	httpClient    *http.Client
}

// webhookPayload is the body sent to the webhook endpoint
type webhookPayload struct {
	Source    string    `json:"source"`
	Type      EventType `json:"type"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewWebhookChannel creates the webhook channel
func NewWebhookChannel(cfg *config.NotificationConfig) *WebhookChannel {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	return &WebhookChannel{
		url:           cfg.WebhookURL,
		retryAttempts: attempts,
		retryDelay:    delay,
		httpClient: &http.Client{
			Timeout: cfg.NotificationTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Name implements Channel
func (w *WebhookChannel) Name() string { return "webhook" }

// Send implements Channel
func (w *WebhookChannel) Send(ctx context.Context, event *Event) error {
	body, err := json.Marshal(&webhookPayload{
		Source:    "carrierwave",
		Type:      event.Type,
		Subject:   event.Subject,
		Body:      event.Body,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())
	}

	var lastErr error
	for attempt := 1; attempt <= w.retryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(w.backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if lastErr = w.post(ctx, event, body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (w *WebhookChannel) post(ctx context.Context, event *Event, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to build webhook request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CarrierWave/1.0")
	req.Header.Set("X-Request-ID", event.ID)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeExternal, "Webhook request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return utils.NewAppError(utils.ErrCodeExternal, "Webhook returned non-success status",
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, snippet))
	}
	return nil
}

// backoff doubles the base delay per attempt, capped at webhookMaxDelay
func (w *WebhookChannel) backoff(attempt int) time.Duration {
	delay := w.retryDelay << uint(attempt-2)
	if delay > webhookMaxDelay || delay <= 0 {
		delay = webhookMaxDelay
	}
	return delay
}
