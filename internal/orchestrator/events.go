package orchestrator

import (
	"time"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// EventType represents the type of controller event.
type EventType string

const (
	// EventRunSubmitted indicates a query was accepted and a run created.
	EventRunSubmitted EventType = "run_submitted"
	// EventPhaseChanged indicates a run moved to a new phase.
	EventPhaseChanged EventType = "phase_changed"
	// EventDecompositionFallback indicates the template decomposition replaced the reasoning step.
	EventDecompositionFallback EventType = "decomposition_fallback"
	// EventAgentCompleted indicates one sub-question reached a terminal result.
	EventAgentCompleted EventType = "agent_completed"
	// EventApprovalRequested indicates a run parked at the approval gate.
	EventApprovalRequested EventType = "approval_requested"
	// EventGateResolved indicates the approval gate accepted a decision.
	EventGateResolved EventType = "gate_resolved"
	// EventDecisionIgnored indicates a decision arrived after the gate resolved.
	EventDecisionIgnored EventType = "decision_ignored"
	// EventNotification indicates notifier dispatch finished.
	EventNotification EventType = "notification"
	// EventRunTerminated indicates a run reached its terminal phase.
	EventRunTerminated EventType = "run_terminated"
)

// Event represents an event emitted by the controller.
// These events are used to update the review UI and track progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// RunID is the run the event belongs to.
	RunID string
	// Phase is the run's phase after the event.
	Phase models.Phase
	// SubQuestionID is set for agent events.
	SubQuestionID string
	// Capability is set for agent events.
	Capability models.Capability
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
