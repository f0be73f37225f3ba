package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/models"
)

type captureChannel struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) Send(ctx context.Context, event *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func newTestManager(channels ...Channel) *Manager {
	mgr := NewManager(&config.NotificationConfig{
		MaxConcurrentNotifications: 2,
		NotificationTimeout:        time.Second,
	}, nil, nil)
	mgr.channels = channels
	return mgr
}

func TestDispatchFillsDefaults(t *testing.T) {
	capture := &captureChannel{}
	mgr := newTestManager(capture)

	mgr.Dispatch(context.Background(), &Event{Type: EventSpotMatched, Subject: "test"})

	require.Len(t, capture.events, 1)
	event := capture.events[0]
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())

	assert.Equal(t, uint64(1), mgr.GetStats().Sent)
}

func TestDispatchRecordsFailures(t *testing.T) {
	bad := &captureChannel{err: assert.AnError}
	good := &captureChannel{}
	mgr := newTestManager(bad, good)

	mgr.Dispatch(context.Background(), &Event{Type: EventSyncReport, Subject: "test"})

	stats := mgr.GetStats()
	assert.Equal(t, uint64(1), stats.Sent)
	assert.Equal(t, uint64(1), stats.Failed)
	require.NotNil(t, stats.LastError)
}

func TestSpotMatchedEvent(t *testing.T) {
	capture := &captureChannel{}
	mgr := newTestManager(capture)

	mgr.SpotMatched(context.Background(), &models.Spot{
		DXCall:       "JA1ABC",
		Band:         "20m",
		Mode:         "CW",
		FrequencyKHz: 14025.5,
		Spotter:      "W3LPL",
		ParkRef:      "US-1211",
	})

	require.Len(t, capture.events, 1)
	event := capture.events[0]
	assert.Equal(t, EventSpotMatched, event.Type)
	assert.Equal(t, "Spot: JA1ABC on 20m", event.Subject)
	assert.Contains(t, event.Body, "14025.5 kHz")
	assert.Contains(t, event.Body, "US-1211")
}

func TestWebhookChannelRetries(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := NewWebhookChannel(&config.NotificationConfig{
		WebhookURL:    server.URL,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})

	err := channel.Send(context.Background(), &Event{
		ID:        "evt-1",
		Type:      EventSpotMatched,
		Subject:   "test",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWebhookChannelExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	channel := NewWebhookChannel(&config.NotificationConfig{
		WebhookURL:    server.URL,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	})

	err := channel.Send(context.Background(), &Event{ID: "evt-2", Subject: "test"})
	require.Error(t, err)
}

func TestEmailChannelValidation(t *testing.T) {
	noRecipients := NewEmailChannel(&config.NotificationConfig{SMTPHost: "localhost"})
	assert.Error(t, noRecipients.Send(context.Background(), &Event{Subject: "test"}))

	badAddress := NewEmailChannel(&config.NotificationConfig{
		SMTPHost: "localhost",
		EmailTo:  []string{"not-an-address"},
	})
	assert.Error(t, badAddress.Send(context.Background(), &Event{Subject: "test"}))
}

func TestChannelSelection(t *testing.T) {
	// Log only
	mgr := NewManager(&config.NotificationConfig{}, nil, nil)
	assert.Equal(t, 1, mgr.ChannelCount())

	// Webhook and email added when enabled and configured
	mgr = NewManager(&config.NotificationConfig{
		EnableWebhookNotifications: true,
		WebhookURL:                 "https://example.com/hook",
		EnableEmailNotifications:   true,
		SMTPHost:                   "smtp.example.com",
		EmailFrom:                  "log@example.com",
		EmailTo:                    []string{"op@example.com"},
	}, nil, nil)
	assert.Equal(t, 3, mgr.ChannelCount())

	// Enabled but unconfigured channels are skipped
	mgr = NewManager(&config.NotificationConfig{
		EnableWebhookNotifications: true,
		EnableEmailNotifications:   true,
	}, nil, nil)
	assert.Equal(t, 1, mgr.ChannelCount())
}
