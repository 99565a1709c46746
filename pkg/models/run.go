package models

import (
	"encoding/json"
	"time"
)

// Phase is a state of the workflow controller's state machine.
type Phase string

const (
	PhaseSubmitted        Phase = "submitted"
	PhaseDecomposing      Phase = "decomposing"
	PhaseDispatching      Phase = "dispatching"
	PhaseConsolidating    Phase = "consolidating"
	PhaseAwaitingApproval Phase = "awaiting_approval"
	PhaseNotifying        Phase = "notifying"
	PhaseTerminated       Phase = "terminated"
)

// phaseRank orders phases so that transitions can only move forward.
var phaseRank = map[Phase]int{
	PhaseSubmitted:        0,
	PhaseDecomposing:      1,
	PhaseDispatching:      2,
	PhaseConsolidating:    3,
	PhaseAwaitingApproval: 4,
	PhaseNotifying:        5,
	PhaseTerminated:       6,
}

// Valid returns true if the phase is a known value.
func (p Phase) Valid() bool {
	_, ok := phaseRank[p]
	return ok
}

// IsTerminal returns true for the terminated phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseTerminated
}

// Cancellable reports whether a run in this phase may still be cancelled.
func (p Phase) Cancellable() bool {
	return p.Valid() && phaseRank[p] < phaseRank[PhaseNotifying]
}

// Next returns the successor phase on the normal path, or the phase itself
// when it is terminal or unknown.
func (p Phase) Next() Phase {
	if !p.Valid() || p.IsTerminal() {
		return p
	}
	rank := phaseRank[p] + 1
	for phase, r := range phaseRank {
		if r == rank {
			return phase
		}
	}
	return p
}

// CanTransitionTo reports whether next is a legal successor of p.
// Every phase before notifying may jump straight to terminated; otherwise
// only the immediate successor is allowed.
func (p Phase) CanTransitionTo(next Phase) bool {
	if !p.Valid() || !next.Valid() || p.IsTerminal() {
		return false
	}
	if next == PhaseTerminated {
		return true
	}
	return phaseRank[next] == phaseRank[p]+1
}

// CauseKind classifies why a run terminated abnormally.
type CauseKind string

const (
	// CauseFatal is a ControllerFatal error.
	CauseFatal CauseKind = "fatal"
	// CauseCancelled means the run was cancelled before notifying.
	CauseCancelled CauseKind = "cancelled"
	// CauseInterrupted means the process stopped while the run was mid-phase.
	CauseInterrupted CauseKind = "interrupted"
)

// RunCause records why a run ended outside the normal flow.
type RunCause struct {
	Kind   CauseKind `json:"kind"`
	Phase  Phase     `json:"phase"`
	Detail string    `json:"detail"`
}

// RunContext is passed to capability agents with every call.
type RunContext struct {
	RunID         string     `json:"run_id"`
	SubQuestionID string     `json:"sub_question_id"`
	Capability    Capability `json:"capability"`
	Deadline      time.Time  `json:"deadline"`
}

// RunState is the aggregate owned by the workflow controller for one run.
type RunState struct {
	RunID string `json:"run_id"`
	Phase Phase  `json:"phase"`
	Query Query  `json:"query"`

	SubQuestions        []SubQuestion          `json:"sub_questions,omitempty"`
	DecompositionSource DecompositionSource    `json:"decomposition_source,omitempty"`
	AgentResults        map[string]AgentResult `json:"agent_results,omitempty"`
	Summary             *ConsolidatedSummary   `json:"summary,omitempty"`
	Decision            *ApprovalDecision      `json:"decision,omitempty"`
	Notification        *NotificationRecord    `json:"notification,omitempty"`
	Cause               *RunCause              `json:"cause,omitempty"`

	// ApprovalDeadline is set while the run awaits approval.
	ApprovalDeadline *time.Time `json:"approval_deadline,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
}

// OverallStatus returns the summary status, or failed when the run
// terminated on a fatal error or without producing a summary.
func (s *RunState) OverallStatus() OverallStatus {
	if s.Cause != nil && s.Cause.Kind == CauseFatal {
		return OverallFailed
	}
	if s.Summary != nil {
		return s.Summary.OverallStatus
	}
	if s.Phase.IsTerminal() {
		return OverallFailed
	}
	return ""
}

// Clone returns a deep copy of the run state.
func (s *RunState) Clone() *RunState {
	if s == nil {
		return nil
	}
	c := *s
	if s.SubQuestions != nil {
		c.SubQuestions = append([]SubQuestion(nil), s.SubQuestions...)
	}
	if s.AgentResults != nil {
		c.AgentResults = make(map[string]AgentResult, len(s.AgentResults))
		for id, r := range s.AgentResults {
			c.AgentResults[id] = cloneResult(r)
		}
	}
	if s.Summary != nil {
		sum := *s.Summary
		sum.Sections = append([]Section(nil), s.Summary.Sections...)
		c.Summary = &sum
	}
	if s.Decision != nil {
		d := *s.Decision
		c.Decision = &d
	}
	if s.Notification != nil {
		n := *s.Notification
		n.Attempts = append([]DeliveryAttempt(nil), s.Notification.Attempts...)
		if s.Notification.Receipt != nil {
			r := *s.Notification.Receipt
			n.Receipt = &r
		}
		c.Notification = &n
	}
	if s.Cause != nil {
		cause := *s.Cause
		c.Cause = &cause
	}
	c.ApprovalDeadline = cloneTime(s.ApprovalDeadline)
	c.TerminatedAt = cloneTime(s.TerminatedAt)
	return &c
}

func cloneResult(r AgentResult) AgentResult {
	if r.Payload != nil {
		p := *r.Payload
		p.Data = append(json.RawMessage(nil), r.Payload.Data...)
		r.Payload = &p
	}
	if r.Error != nil {
		e := *r.Error
		r.Error = &e
	}
	return r
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
