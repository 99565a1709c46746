package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/notifier"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

var errNoPrimaryNotifier = &notifier.Error{
	Kind:      notifier.KindConfig,
	Transport: "none",
	Err:       errors.New("no primary notifier configured"),
}

// NotifierDispatch delivers an approved summary: one primary attempt, then
// at most one fallback attempt.
type NotifierDispatch struct {
	primary  notifier.Notifier
	fallback notifier.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewNotifierDispatch creates a NotifierDispatch. fallback may be nil.
func NewNotifierDispatch(primary, fallback notifier.Notifier, logger *zap.Logger) *NotifierDispatch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifierDispatch{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Notify sends the message and records every attempt. It never retries
// beyond the single fallback attempt.
func (n *NotifierDispatch) Notify(ctx context.Context, recipient, subject, body string) models.NotificationRecord {
	rec := models.NotificationRecord{
		Recipient: recipient,
		Subject:   subject,
	}

	receipt, err := n.attempt(ctx, &rec, n.primary, false, recipient, subject, body)
	if err == nil {
		rec.Outcome = models.NotifierSent
		rec.Receipt = receipt
		return rec
	}
	n.logger.Warn("primary notifier failed", zap.Error(err))

	if n.fallback == nil {
		rec.Outcome = models.NotifierFailed
		rec.Error = err.Error()
		return rec
	}

	receipt, ferr := n.attempt(ctx, &rec, n.fallback, true, recipient, subject, body)
	if ferr != nil {
		n.logger.Error("fallback notifier failed", zap.Error(ferr))
		rec.Outcome = models.NotifierFailed
		rec.Error = ferr.Error()
		return rec
	}
	rec.Outcome = models.NotifierSentViaFallback
	rec.Receipt = receipt
	return rec
}

func (n *NotifierDispatch) attempt(ctx context.Context, rec *models.NotificationRecord, target notifier.Notifier, fallback bool, recipient, subject, body string) (*models.DeliveryReceipt, error) {
	attempt := models.DeliveryAttempt{Fallback: fallback, At: n.now()}

	var receipt *models.DeliveryReceipt
	var err error
	if target == nil {
		attempt.Transport = errNoPrimaryNotifier.Transport
		err = errNoPrimaryNotifier
	} else {
		attempt.Transport = target.Name()
		receipt, err = target.Send(ctx, recipient, subject, body)
		if err == nil && receipt == nil {
			receipt = &models.DeliveryReceipt{Transport: target.Name(), Recipient: recipient, SentAt: n.now()}
		}
	}
	if err != nil {
		attempt.Error = err.Error()
	}
	rec.Attempts = append(rec.Attempts, attempt)
	return receipt, err
}
