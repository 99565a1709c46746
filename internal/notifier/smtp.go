package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// SMTPTransport is the transport name of SMTPNotifier.
const SMTPTransport = "smtp"

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	UseTLS   bool
	Sender   string
	// Timeout bounds the whole exchange when ctx has no earlier deadline.
	Timeout time.Duration
}

// SMTPNotifier delivers messages through an SMTP relay.
type SMTPNotifier struct {
	cfg SMTPConfig
	settings
}

// NewSMTPNotifier creates an SMTP notifier.
func NewSMTPNotifier(cfg SMTPConfig, opts ...Option) *SMTPNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPNotifier{cfg: cfg, settings: newSettings(opts)}
}

// Name returns SMTPTransport.
func (n *SMTPNotifier) Name() string {
	return SMTPTransport
}

// Send performs one SMTP exchange: STARTTLS when enabled, PLAIN auth when a
// username is set, then MAIL, RCPT and DATA.
func (n *SMTPNotifier) Send(ctx context.Context, recipient, subject, body string) (*models.DeliveryReceipt, error) {
	if n.cfg.Server == "" || n.cfg.Sender == "" {
		return nil, n.fail(KindConfig, errors.New("smtp server and sender are required"))
	}
	if recipient == "" {
		return nil, n.fail(KindConfig, errors.New("recipient is required"))
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(n.cfg.Server, strconv.Itoa(n.cfg.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, n.classify(ctx, fmt.Errorf("dial %s: %w", addr, err))
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.cfg.Server)
	if err != nil {
		conn.Close()
		return nil, n.classify(ctx, fmt.Errorf("smtp handshake: %w", err))
	}
	defer client.Close()

	if n.cfg.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Server}); err != nil {
			return nil, n.classify(ctx, fmt.Errorf("starttls: %w", err))
		}
	}
	if n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Server)
		if err := client.Auth(auth); err != nil {
			return nil, n.classify(ctx, fmt.Errorf("auth: %w", err))
		}
	}

	now := n.now()
	id := messageID(now)
	msg := buildMessage(n.cfg.Sender, recipient, subject, body, id, now)

	if err := client.Mail(n.cfg.Sender); err != nil {
		return nil, n.classify(ctx, fmt.Errorf("mail from: %w", err))
	}
	if err := client.Rcpt(recipient); err != nil {
		return nil, n.classify(ctx, fmt.Errorf("rcpt to: %w", err))
	}
	w, err := client.Data()
	if err != nil {
		return nil, n.classify(ctx, fmt.Errorf("data: %w", err))
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return nil, n.classify(ctx, fmt.Errorf("write body: %w", err))
	}
	if err := w.Close(); err != nil {
		return nil, n.classify(ctx, fmt.Errorf("end data: %w", err))
	}
	if err := client.Quit(); err != nil {
		n.logger.Warn("smtp quit failed after delivery", zap.Error(err))
	}

	n.logger.Info("email sent", zap.String("message_id", id), zap.String("recipient", recipient))
	return &models.DeliveryReceipt{
		MessageID: id,
		Transport: SMTPTransport,
		Recipient: recipient,
		SentAt:    now,
	}, nil
}

func (n *SMTPNotifier) fail(kind ErrorKind, err error) error {
	return &Error{Kind: kind, Transport: SMTPTransport, Err: err}
}

func (n *SMTPNotifier) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
		return n.fail(KindCancelled, err)
	}
	return n.fail(KindTransport, err)
}

func messageID(now time.Time) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("<%d.%s@%s>", now.UnixNano(), uuid.NewString(), host)
}

func buildMessage(from, to, subject, body, id string, now time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", sanitizeHeader(from))
	fmt.Fprintf(&b, "To: %s\r\n", sanitizeHeader(to))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", sanitizeHeader(subject)))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", id)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes()
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
