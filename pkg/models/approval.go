package models

import (
	"errors"
	"strings"
	"time"
)

// ApprovalOutcome is the resolution of the approval gate.
type ApprovalOutcome string

const (
	// ApprovalApproved releases the consolidated summary for delivery as is.
	ApprovalApproved ApprovalOutcome = "approved"
	// ApprovalRejected ends the run without delivery.
	ApprovalRejected ApprovalOutcome = "rejected"
	// ApprovalEdited releases the reviewer's edited text for delivery.
	ApprovalEdited ApprovalOutcome = "edited"
)

// Valid returns true if the outcome is a known value.
func (o ApprovalOutcome) Valid() bool {
	switch o {
	case ApprovalApproved, ApprovalRejected, ApprovalEdited:
		return true
	default:
		return false
	}
}

// ReleasesDelivery reports whether the outcome permits notification.
func (o ApprovalOutcome) ReleasesDelivery() bool {
	return o == ApprovalApproved || o == ApprovalEdited
}

// ApprovalReason records what resolved the gate.
type ApprovalReason string

const (
	// ReasonReviewer means an external decision resolved the gate.
	ReasonReviewer ApprovalReason = "reviewer"
	// ReasonApprovalTimeout means no decision arrived before the deadline.
	ReasonApprovalTimeout ApprovalReason = "approval_timeout"
	// ReasonCancelled means the run was cancelled while awaiting approval.
	ReasonCancelled ApprovalReason = "cancelled"
)

// ApprovalDecision is the single accepted resolution of a run's approval gate.
type ApprovalDecision struct {
	RunID   string          `json:"run_id"`
	Outcome ApprovalOutcome `json:"outcome"`
	// EditedText is present iff Outcome is ApprovalEdited.
	EditedText string         `json:"edited_text,omitempty"`
	Reason     ApprovalReason `json:"reason"`
	DecidedAt  time.Time      `json:"decided_at"`
}

var (
	errUnknownOutcome    = errors.New("unknown approval outcome")
	errMissingEditedText = errors.New("edited decision requires edited text")
	errUnexpectedEdit    = errors.New("edited text is only allowed with an edited outcome")
)

// Validate checks the outcome and the edited text pairing.
func (d ApprovalDecision) Validate() error {
	if !d.Outcome.Valid() {
		return errUnknownOutcome
	}
	hasText := strings.TrimSpace(d.EditedText) != ""
	if d.Outcome == ApprovalEdited && !hasText {
		return errMissingEditedText
	}
	if d.Outcome != ApprovalEdited && hasText {
		return errUnexpectedEdit
	}
	return nil
}
