package models

import "time"

// NotifierOutcome is the result of notifier dispatch for a run.
type NotifierOutcome string

const (
	// NotifierSent means the primary notifier delivered the message.
	NotifierSent NotifierOutcome = "sent"
	// NotifierSentViaFallback means the primary failed and the fallback delivered.
	NotifierSentViaFallback NotifierOutcome = "sent_via_fallback"
	// NotifierFailed means no attempt succeeded.
	NotifierFailed NotifierOutcome = "failed"
)

// DeliveryReceipt is returned by a notifier on successful delivery.
type DeliveryReceipt struct {
	MessageID string    `json:"message_id"`
	Transport string    `json:"transport"`
	Recipient string    `json:"recipient"`
	SentAt    time.Time `json:"sent_at"`
}

// DeliveryAttempt records one call to a notifier.
type DeliveryAttempt struct {
	Transport string    `json:"transport"`
	Fallback  bool      `json:"fallback"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// NotificationRecord is the audit record of notifier dispatch.
type NotificationRecord struct {
	Outcome   NotifierOutcome   `json:"outcome"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Receipt   *DeliveryReceipt  `json:"receipt,omitempty"`
	Attempts  []DeliveryAttempt `json:"attempts"`
	Error     string            `json:"error,omitempty"`
}
