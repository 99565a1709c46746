package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// MockTransport is the transport name of MockNotifier.
const MockTransport = "mock"

// MockEntry is one line of the mock email log.
type MockEntry struct {
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"message_id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
}

// MockNotifier appends each message as a JSON line to a log file.
// It is safe for concurrent use.
type MockNotifier struct {
	path string
	settings
	mu  sync.Mutex
	seq int
}

// NewMockNotifier creates a mock notifier writing to path.
func NewMockNotifier(path string, opts ...Option) *MockNotifier {
	return &MockNotifier{path: path, settings: newSettings(opts)}
}

// Name returns MockTransport.
func (m *MockNotifier) Name() string {
	return MockTransport
}

// Path returns the log file location.
func (m *MockNotifier) Path() string {
	return m.path
}

// Send records the message in the mock log.
func (m *MockNotifier) Send(ctx context.Context, recipient, subject, body string) (*models.DeliveryReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindCancelled, Transport: MockTransport, Err: err}
	}
	if m.path == "" {
		return nil, &Error{Kind: KindConfig, Transport: MockTransport, Err: fmt.Errorf("mock log path is not set")}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.seq++
	id := fmt.Sprintf("mock_%s_%d@company.com", now.Format("20060102_150405"), m.seq)
	line, err := json.Marshal(MockEntry{
		Timestamp: now,
		MessageID: id,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	})
	if err != nil {
		return nil, &Error{Kind: KindTransport, Transport: MockTransport, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return nil, &Error{Kind: KindTransport, Transport: MockTransport, Err: err}
	}
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Transport: MockTransport, Err: err}
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, &Error{Kind: KindTransport, Transport: MockTransport, Err: err}
	}

	m.logger.Info("mock email logged",
		zap.String("message_id", id),
		zap.String("recipient", recipient),
		zap.String("path", m.path))

	return &models.DeliveryReceipt{
		MessageID: id,
		Transport: MockTransport,
		Recipient: recipient,
		SentAt:    now,
	}, nil
}

// ReadMockLog returns every entry in a mock log file.
func ReadMockLog(path string) ([]MockEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []MockEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e MockEntry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("decode mock log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
