package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AgentStatus is the terminal status of one capability agent call.
type AgentStatus string

const (
	// AgentStatusOk indicates the agent returned a payload.
	AgentStatusOk AgentStatus = "ok"
	// AgentStatusFailed indicates the agent returned an error or could not be called.
	AgentStatusFailed AgentStatus = "failed"
	// AgentStatusTimedOut indicates the call exceeded the per-agent timeout.
	AgentStatusTimedOut AgentStatus = "timed_out"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusOk, AgentStatusFailed, AgentStatusTimedOut:
		return true
	default:
		return false
	}
}

// AgentErrorKind is the machine-readable classification of an agent failure.
type AgentErrorKind string

const (
	AgentErrorTimeout      AgentErrorKind = "timeout"
	AgentErrorCancelled    AgentErrorKind = "cancelled"
	AgentErrorUnavailable  AgentErrorKind = "unavailable"
	AgentErrorInvalidInput AgentErrorKind = "invalid_input"
	AgentErrorNotFound     AgentErrorKind = "not_found"
	AgentErrorInternal     AgentErrorKind = "internal"
	AgentErrorPanic        AgentErrorKind = "panic"
)

// AgentError is returned by capability agents and recorded on failed results.
type AgentError struct {
	Kind   AgentErrorKind `json:"kind"`
	Detail string         `json:"detail"`
}

// NewAgentError creates an AgentError with a formatted detail.
func NewAgentError(kind AgentErrorKind, format string, args ...any) *AgentError {
	return &AgentError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Payload is the capability-specific result of a successful agent call.
type Payload struct {
	// Summary is the rendered text used for the consolidated section.
	Summary string `json:"summary"`
	// Data is the structured result (rows, graph paths, similarity matches).
	Data json.RawMessage `json:"data,omitempty"`
}

// NewPayload encodes data as JSON and pairs it with its rendered summary.
func NewPayload(summary string, data any) (*Payload, error) {
	if data == nil {
		return &Payload{Summary: summary}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return &Payload{Summary: summary, Data: raw}, nil
}

// AgentResult is the outcome of dispatching one sub-question.
// Error is set iff Status is not AgentStatusOk.
type AgentResult struct {
	SubQuestionID string      `json:"sub_question_id"`
	Capability    Capability  `json:"capability"`
	Status        AgentStatus `json:"status"`
	Payload       *Payload    `json:"payload,omitempty"`
	Error         *AgentError `json:"error,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	CompletedAt   time.Time   `json:"completed_at"`
}

// Duration returns how long the agent call took.
func (r AgentResult) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
