// File: internal/notification/email.go
package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// EmailChannel delivers events as plain-text mail over SMTP
type EmailChannel struct {
	host string
	port int
	from string
	to   []string
	auth smtp.Auth
}

// NewEmailChannel creates the email channel
func NewEmailChannel(cfg *config.NotificationConfig) *EmailChannel {
	ch := &EmailChannel{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		from: cfg.EmailFrom,
		to:   cfg.EmailTo,
	}
	if ch.port == 0 {
		ch.port = 587
	}
	if cfg.SMTPUsername != "" && cfg.SMTPPassword != "" {
		ch.auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return ch
}

// Name implements Channel
func (e *EmailChannel) Name() string { return "email" }

// Send implements Channel
func (e *EmailChannel) Send(ctx context.Context, event *Event) error {
	if len(e.to) == 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "No email recipients configured")
	}
	for _, addr := range e.to {
		if !isValidEmail(addr) {
			return utils.NewAppError(utils.ErrCodeValidation, "Invalid email address", addr)
		}
	}

	message := e.buildMessage(event)
	addr := fmt.Sprintf("%s:%d", e.host, e.port)

	// smtp.SendMail has no context support; run it in a goroutine so
	// the dispatch timeout still applies
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, e.auth, e.from, e.to, []byte(message))
	}()

	select {
	case err := <-done:
		if err != nil {
			return utils.NewAppError(utils.ErrCodeExternal, "Failed to send email", err.Error())
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *EmailChannel) buildMessage(event *Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", event.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", event.Timestamp.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(event.Body)
	b.WriteString("\r\n")
	return b.String()
}

func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return false
	}
	return len(local) <= 64 && len(domain) <= 253
}
