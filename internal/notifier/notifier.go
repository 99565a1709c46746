// Package notifier delivers approved run summaries by email, either over
// SMTP or to a local mock log.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/config"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// Notifier delivers one message to one recipient.
type Notifier interface {
	// Name identifies the transport in receipts and attempt records.
	Name() string
	Send(ctx context.Context, recipient, subject, body string) (*models.DeliveryReceipt, error)
}

// ErrorKind classifies a delivery failure.
type ErrorKind string

const (
	// KindConfig means the notifier is missing required settings.
	KindConfig ErrorKind = "config"
	// KindTransport means the message could not be handed to the transport.
	KindTransport ErrorKind = "transport"
	// KindCancelled means the context ended before delivery.
	KindCancelled ErrorKind = "cancelled"
)

// Error is returned by notifiers on delivery failure.
type Error struct {
	Kind      ErrorKind
	Transport string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Transport, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

const rule = "=================================================="

// FormatSubject returns the notification subject for a send time.
func FormatSubject(t time.Time) string {
	return "Pharmaceutical Analysis Summary - " + t.Format("2006-01-02 15:04")
}

// Body is the content rendered into a notification.
type Body struct {
	RunID       string
	Query       string
	Text        string
	GeneratedAt time.Time
}

// FormatBody renders the plain-text notification body.
func FormatBody(b Body) string {
	var sb strings.Builder
	sb.WriteString("PHARMACEUTICAL DATA ANALYSIS SUMMARY\n")
	sb.WriteString(rule + "\n\n")
	fmt.Fprintf(&sb, "Analysis Date: %s\n", b.GeneratedAt.Format("2006-01-02 15:04:05"))
	if b.Query != "" {
		fmt.Fprintf(&sb, "Original Query: %s\n", b.Query)
	}
	if b.RunID != "" {
		fmt.Fprintf(&sb, "Run ID: %s\n", b.RunID)
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimRight(b.Text, "\n"))
	sb.WriteString("\n\n" + rule + "\n")
	sb.WriteString("This report was generated automatically by the pharmaceutical query coordinator.\n")
	sb.WriteString("For questions or clarifications, please contact the Data Analysis Team.\n")
	return sb.String()
}

// FromConfig builds the primary notifier and the optional fallback. In mock
// mode the mock is primary and there is no fallback; otherwise SMTP is
// primary and the mock is the fallback when enabled.
func FromConfig(cfg *config.Config, opts ...Option) (primary, fallback Notifier) {
	mock := NewMockNotifier(cfg.MockLogPath(), opts...)
	if cfg.Email.MockMode {
		return mock, nil
	}
	smtpNotifier := NewSMTPNotifier(SMTPConfig{
		Server:   cfg.Email.SMTPServer,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		UseTLS:   cfg.Email.UseTLS,
		Sender:   cfg.Email.Sender,
	}, opts...)
	if cfg.Email.FallbackToMock {
		return smtpNotifier, mock
	}
	return smtpNotifier, nil
}
