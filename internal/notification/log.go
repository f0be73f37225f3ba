// File: internal/notification/log.go
package notification

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogChannel writes every event to the service log. It is always
// enabled and never fails.
type LogChannel struct {
	logger *logrus.Entry
}

// NewLogChannel creates the log channel
func NewLogChannel() *LogChannel {
	return &LogChannel{
		logger: logrus.WithField("component", "notification-log"),
	}
}

// Name implements Channel
func (l *LogChannel) Name() string { return "log" }

// Send implements Channel
func (l *LogChannel) Send(ctx context.Context, event *Event) error {
	l.logger.WithFields(logrus.Fields{
		"type":    event.Type,
		"subject": event.Subject,
	}).Info(event.Body)
	return nil
}
