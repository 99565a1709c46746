package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/notifier"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

func TestNotifierDispatch(t *testing.T) {
	smtpDown := &notifier.Error{Kind: notifier.KindTransport, Transport: "smtp", Err: errors.New("dial tcp: refused")}

	tests := []struct {
		name         string
		primary      notifier.Notifier
		fallback     notifier.Notifier
		wantOutcome  models.NotifierOutcome
		wantAttempts int
		wantErr      bool
	}{
		{"primary ok", &fakeNotifier{name: "smtp"}, &fakeNotifier{name: "mock"}, models.NotifierSent, 1, false},
		{"fallback ok", &fakeNotifier{name: "smtp", err: smtpDown}, &fakeNotifier{name: "mock"}, models.NotifierSentViaFallback, 2, false},
		{"both fail", &fakeNotifier{name: "smtp", err: smtpDown}, &fakeNotifier{name: "mock", err: errors.New("disk full")}, models.NotifierFailed, 2, true},
		{"no fallback", &fakeNotifier{name: "smtp", err: smtpDown}, nil, models.NotifierFailed, 1, true},
		{"no primary", nil, &fakeNotifier{name: "mock"}, models.NotifierSentViaFallback, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNotifierDispatch(tt.primary, tt.fallback, nil)
			rec := n.Notify(context.Background(), "analyst@company.com", "Summary", "body")

			if rec.Outcome != tt.wantOutcome {
				t.Errorf("expected outcome %s, got %s", tt.wantOutcome, rec.Outcome)
			}
			if len(rec.Attempts) != tt.wantAttempts {
				t.Fatalf("expected %d attempts, got %d", tt.wantAttempts, len(rec.Attempts))
			}
			if (rec.Error != "") != tt.wantErr {
				t.Errorf("unexpected error field %q", rec.Error)
			}
			if !tt.wantErr && rec.Receipt == nil {
				t.Error("expected a receipt on success")
			}
			if tt.wantAttempts == 2 && !rec.Attempts[1].Fallback {
				t.Error("expected second attempt marked as fallback")
			}
			if rec.Recipient != "analyst@company.com" || rec.Subject != "Summary" {
				t.Errorf("unexpected record header %+v", rec)
			}
		})
	}
}

func TestNotifierDispatch_FallbackCalledOnce(t *testing.T) {
	primary := &fakeNotifier{name: "smtp", err: errors.New("auth failed")}
	fallback := &fakeNotifier{name: "mock", err: errors.New("read-only")}

	NewNotifierDispatch(primary, fallback, nil).Notify(context.Background(), "a@b.c", "s", "b")
	if primary.count() != 1 || fallback.count() != 1 {
		t.Errorf("expected one attempt each, got primary=%d fallback=%d", primary.count(), fallback.count())
	}
}
