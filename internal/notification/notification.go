// File: internal/notification/notification.go
// Package notification fans events out to the configured channels:
// webhook, email and the service log.
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/metrics"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/internal/storage"
	logsync "github.com/fullduplex/carrierwave/internal/sync"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// EventType classifies a notification
type EventType string

const (
	EventSpotMatched  EventType = "spot_matched"
	EventSyncReport   EventType = "sync_report"
	EventDailySummary EventType = "daily_summary"
)

// Event is the payload handed to every channel
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Subject   string                 `json:"subject"`
	Body      string                 `json:"body"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Channel delivers events to one destination
type Channel interface {
	Name() string
	Send(ctx context.Context, event *Event) error
}

// Stats tracks delivery outcomes
type Stats struct {
	Sent          uint64     `json:"sent"`
	Failed        uint64     `json:"failed"`
	LastError     *string    `json:"last_error,omitempty"`
	LastErrorTime *time.Time `json:"last_error_time,omitempty"`
}

// Manager owns the channels and applies concurrency and timeout limits
type Manager struct {
	config   *config.NotificationConfig
	storage  storage.Storage
	metrics  *metrics.PrometheusMetrics
	channels []Channel
	sem      chan struct{}
	logger   *logrus.Entry

	mu     sync.Mutex
	stats  Stats
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds the manager with channels enabled by configuration.
// The log channel is always on so events stay observable even with no
// outbound channels configured.
func NewManager(cfg *config.NotificationConfig, store storage.Storage, m *metrics.PrometheusMetrics) *Manager {
	concurrency := cfg.MaxConcurrentNotifications
	if concurrency <= 0 {
		concurrency = 4
	}

	mgr := &Manager{
		config:  cfg,
		storage: store,
		metrics: m,
		sem:     make(chan struct{}, concurrency),
		logger:  logrus.WithField("component", "notification"),
	}

	mgr.channels = append(mgr.channels, NewLogChannel())
	if cfg.EnableWebhookNotifications && cfg.WebhookURL != "" {
		mgr.channels = append(mgr.channels, NewWebhookChannel(cfg))
	}
	if cfg.EnableEmailNotifications && cfg.SMTPHost != "" {
		mgr.channels = append(mgr.channels, NewEmailChannel(cfg))
	}

	return mgr
}

// Start launches the daily summary scheduler
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return nil
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.summaryLoop(ctx)
	}()

	m.logger.WithField("channels", len(m.channels)).Info("Notification manager started")
	return nil
}

// Stop halts the scheduler and waits for in-flight deliveries
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.cancel = nil
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Notification manager stopped")
	return nil
}

// IsRunning reports whether the scheduler is active
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// SpotMatched raises a watchlist alert
func (m *Manager) SpotMatched(ctx context.Context, spot *models.Spot) {
	subject := fmt.Sprintf("Spot: %s on %s", spot.DXCall, spot.Band)
	body := fmt.Sprintf("%s spotted on %.1f kHz (%s %s) by %s",
		spot.DXCall, spot.FrequencyKHz, spot.Band, spot.Mode, spot.Spotter)
	if spot.ParkRef != "" {
		body += " at " + spot.ParkRef
	}

	m.Dispatch(ctx, &Event{
		Type:    EventSpotMatched,
		Subject: subject,
		Body:    body,
		Data: map[string]interface{}{
			"spot": spot,
		},
	})
}

// SyncReportCompleted notifies the outcome of a sync run
func (m *Manager) SyncReportCompleted(ctx context.Context, report *logsync.Report) {
	status := "ok"
	if !report.Succeeded() {
		status = "failed"
	}

	m.Dispatch(ctx, &Event{
		Type:    EventSyncReport,
		Subject: fmt.Sprintf("Logbook sync %s: %d uploaded", status, report.TotalUploaded()),
		Body:    fmt.Sprintf("Sync finished at %s across %d backends", report.FinishedAt.Format(time.RFC3339), len(report.Backends)),
		Data: map[string]interface{}{
			"report": report,
		},
	})
}

// Dispatch delivers the event to every channel, bounded by the
// concurrency limit and the per-notification timeout
func (m *Manager) Dispatch(ctx context.Context, event *Event) {
	if event.ID == "" {
		event.ID = utils.GenerateID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	timeout := m.config.NotificationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var wg sync.WaitGroup
	for _, channel := range m.channels {
		select {
		case m.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			defer func() { <-m.sem }()

			sendCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			if err := ch.Send(sendCtx, event); err != nil {
				m.recordFailure(ch.Name(), event, err)
			} else {
				m.recordSuccess(ch.Name(), event)
			}
		}(channel)
	}
	wg.Wait()
}

func (m *Manager) recordSuccess(channel string, event *Event) {
	m.mu.Lock()
	m.stats.Sent++
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordNotificationSent(channel, string(event.Type))
	}
}

func (m *Manager) recordFailure(channel string, event *Event, err error) {
	m.mu.Lock()
	m.stats.Failed++
	errStr := err.Error()
	m.stats.LastError = &errStr
	now := time.Now()
	m.stats.LastErrorTime = &now
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordNotificationFailure(channel, string(event.Type), utils.ErrorCode(err))
	}

	m.logger.WithError(err).WithFields(logrus.Fields{
		"channel": channel,
		"type":    event.Type,
	}).Warn("Notification delivery failed")
}

// summaryLoop sends a daily summary shortly after each UTC midnight
func (m *Manager) summaryLoop(ctx context.Context) {
	for {
		next := nextUTCMidnight(time.Now().UTC())
		select {
		case <-time.After(time.Until(next)):
			m.sendDailySummary(ctx, next.AddDate(0, 0, -1))
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) sendDailySummary(ctx context.Context, day time.Time) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	count, err := m.storage.CountQSOs(ctx, models.QSOFilter{From: &from, To: &to})
	if err != nil {
		m.logger.WithError(err).Warn("Daily summary query failed")
		return
	}

	m.Dispatch(ctx, &Event{
		Type:    EventDailySummary,
		Subject: fmt.Sprintf("Daily summary for %s: %d QSOs", from.Format("2006-01-02"), count),
		Body:    fmt.Sprintf("%d contacts logged on %s", count, from.Format("2006-01-02")),
		Data: map[string]interface{}{
			"date": from.Format("2006-01-02"),
			"qsos": count,
		},
	})
}

func nextUTCMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// GetStats returns delivery statistics
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// ChannelCount reports the number of active channels
func (m *Manager) ChannelCount() int {
	return len(m.channels)
}
