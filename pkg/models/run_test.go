package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPhase_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from Phase
		to   Phase
		want bool
	}{
		{"submitted to decomposing", PhaseSubmitted, PhaseDecomposing, true},
		{"decomposing to dispatching", PhaseDecomposing, PhaseDispatching, true},
		{"dispatching to consolidating", PhaseDispatching, PhaseConsolidating, true},
		{"consolidating to awaiting", PhaseConsolidating, PhaseAwaitingApproval, true},
		{"awaiting to notifying", PhaseAwaitingApproval, PhaseNotifying, true},
		{"awaiting to terminated", PhaseAwaitingApproval, PhaseTerminated, true},
		{"notifying to terminated", PhaseNotifying, PhaseTerminated, true},
		{"dispatching straight to terminated", PhaseDispatching, PhaseTerminated, true},
		{"skip a phase", PhaseSubmitted, PhaseDispatching, false},
		{"backwards", PhaseConsolidating, PhaseDispatching, false},
		{"same phase", PhaseDispatching, PhaseDispatching, false},
		{"out of terminated", PhaseTerminated, PhaseNotifying, false},
		{"terminated to terminated", PhaseTerminated, PhaseTerminated, false},
		{"unknown target", PhaseSubmitted, Phase("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("%s.CanTransitionTo(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestPhase_Cancellable(t *testing.T) {
	cancellable := []Phase{PhaseSubmitted, PhaseDecomposing, PhaseDispatching, PhaseConsolidating, PhaseAwaitingApproval}
	for _, p := range cancellable {
		if !p.Cancellable() {
			t.Errorf("expected %s to be cancellable", p)
		}
	}
	for _, p := range []Phase{PhaseNotifying, PhaseTerminated, Phase("")} {
		if p.Cancellable() {
			t.Errorf("expected %s not to be cancellable", p)
		}
	}
}

func TestApprovalDecision_Validate(t *testing.T) {
	tests := []struct {
		name    string
		d       ApprovalDecision
		wantErr bool
	}{
		{"approved", ApprovalDecision{Outcome: ApprovalApproved}, false},
		{"rejected", ApprovalDecision{Outcome: ApprovalRejected}, false},
		{"edited with text", ApprovalDecision{Outcome: ApprovalEdited, EditedText: "new body"}, false},
		{"edited without text", ApprovalDecision{Outcome: ApprovalEdited, EditedText: "  "}, true},
		{"approved with text", ApprovalDecision{Outcome: ApprovalApproved, EditedText: "x"}, true},
		{"unknown outcome", ApprovalDecision{Outcome: "maybe"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApprovalOutcome_ReleasesDelivery(t *testing.T) {
	if !ApprovalApproved.ReleasesDelivery() || !ApprovalEdited.ReleasesDelivery() {
		t.Error("approved and edited must release delivery")
	}
	if ApprovalRejected.ReleasesDelivery() {
		t.Error("rejected must not release delivery")
	}
}

func TestRunState_CloneIsDeep(t *testing.T) {
	now := time.Now()
	deadline := now.Add(time.Hour)
	orig := &RunState{
		RunID: "run-1",
		Phase: PhaseAwaitingApproval,
		SubQuestions: []SubQuestion{
			{ID: "q0", Text: "capa?", Capability: CapabilityCAPA, Ordinal: 0},
		},
		AgentResults: map[string]AgentResult{
			"q0": {
				SubQuestionID: "q0",
				Status:        AgentStatusOk,
				Payload:       &Payload{Summary: "ok", Data: json.RawMessage(`{"count":1}`)},
			},
		},
		Summary: &ConsolidatedSummary{
			RunID:    "run-1",
			Sections: []Section{{Ordinal: 0, Text: "ok"}},
		},
		ApprovalDeadline: &deadline,
	}

	c := orig.Clone()
	c.SubQuestions[0].Text = "changed"
	c.Summary.Sections[0].Text = "changed"
	c.AgentResults["q0"].Payload.Data[2] = 'X'
	*c.ApprovalDeadline = now

	if orig.SubQuestions[0].Text != "capa?" {
		t.Errorf("expected sub-question text untouched, got %q", orig.SubQuestions[0].Text)
	}
	if orig.Summary.Sections[0].Text != "ok" {
		t.Errorf("expected section text untouched, got %q", orig.Summary.Sections[0].Text)
	}
	if string(orig.AgentResults["q0"].Payload.Data) != `{"count":1}` {
		t.Errorf("expected payload untouched, got %s", orig.AgentResults["q0"].Payload.Data)
	}
	if !orig.ApprovalDeadline.Equal(deadline) {
		t.Errorf("expected deadline untouched, got %v", orig.ApprovalDeadline)
	}
}

func TestRunState_OverallStatus(t *testing.T) {
	s := &RunState{Phase: PhaseDispatching}
	if got := s.OverallStatus(); got != "" {
		t.Errorf("expected empty status mid-run, got %q", got)
	}
	s.Phase = PhaseTerminated
	if got := s.OverallStatus(); got != OverallFailed {
		t.Errorf("expected failed for terminated run without summary, got %q", got)
	}
	s.Summary = &ConsolidatedSummary{OverallStatus: OverallPartial}
	if got := s.OverallStatus(); got != OverallPartial {
		t.Errorf("expected partial, got %q", got)
	}
	s.Cause = &RunCause{Kind: CauseFatal, Phase: PhaseNotifying, Detail: "boom"}
	if got := s.OverallStatus(); got != OverallFailed {
		t.Errorf("expected failed for fatal cause, got %q", got)
	}
}

func TestNewPayload(t *testing.T) {
	p, err := NewPayload("Found 2", map[string]int{"count": 2})
	if err != nil {
		t.Fatalf("NewPayload failed: %v", err)
	}
	if p.Summary != "Found 2" {
		t.Errorf("expected summary 'Found 2', got %q", p.Summary)
	}
	if string(p.Data) != `{"count":2}` {
		t.Errorf("expected encoded data, got %s", p.Data)
	}

	empty, err := NewPayload("none", nil)
	if err != nil {
		t.Fatalf("NewPayload(nil) failed: %v", err)
	}
	if empty.Data != nil {
		t.Errorf("expected nil data, got %s", empty.Data)
	}
}

func TestPhase_Next(t *testing.T) {
	path := []Phase{
		PhaseSubmitted, PhaseDecomposing, PhaseDispatching, PhaseConsolidating,
		PhaseAwaitingApproval, PhaseNotifying, PhaseTerminated,
	}
	for i := 0; i < len(path)-1; i++ {
		if got := path[i].Next(); got != path[i+1] {
			t.Errorf("%s.Next() = %s, want %s", path[i], got, path[i+1])
		}
	}
	if got := PhaseTerminated.Next(); got != PhaseTerminated {
		t.Errorf("expected terminated to stay terminated, got %s", got)
	}
}
