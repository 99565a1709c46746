package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/capability"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/state"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

func TestController_AllOkApprovedSendsOnce(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")

	parked := h.waitParked(t, id)
	if parked.Phase != models.PhaseAwaitingApproval {
		t.Fatalf("expected awaiting_approval, got %s", parked.Phase)
	}
	if len(parked.SubQuestions) != 3 {
		t.Fatalf("expected 3 sub-questions, got %d", len(parked.SubQuestions))
	}
	wantCaps := models.DefaultCapabilities()
	for i, sq := range parked.SubQuestions {
		if sq.Capability != wantCaps[i] || sq.Ordinal != i {
			t.Errorf("sub-question %d: expected %s/%d, got %s/%d", i, wantCaps[i], i, sq.Capability, sq.Ordinal)
		}
	}
	if parked.DecompositionSource != models.DecompositionReasoned {
		t.Errorf("expected reasoned decomposition, got %s", parked.DecompositionSource)
	}
	if parked.Summary == nil || parked.Summary.OverallStatus != models.OverallComplete {
		t.Fatalf("expected complete summary, got %+v", parked.Summary)
	}
	if parked.ApprovalDeadline == nil {
		t.Error("expected approval deadline while parked")
	}

	if err := h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalApproved}); err != nil {
		t.Fatalf("SubmitApprovalDecision failed: %v", err)
	}
	final := h.waitTerminated(t, id)

	if h.primary.count() != 1 {
		t.Errorf("expected notify called once, got %d", h.primary.count())
	}
	if final.Notification == nil || final.Notification.Outcome != models.NotifierSent {
		t.Fatalf("expected outcome sent, got %+v", final.Notification)
	}
	if final.Decision.Reason != models.ReasonReviewer {
		t.Errorf("expected reviewer reason, got %s", final.Decision.Reason)
	}
	if final.TerminatedAt == nil || final.Cause != nil {
		t.Errorf("expected clean termination, got cause %+v", final.Cause)
	}
	if !strings.Contains(h.primary.lastBody(), "**CAPA Analysis:** Found 3 open CAPAs") {
		t.Errorf("expected rendered summary in body, got %q", h.primary.lastBody())
	}
}

func TestController_AgentTimeoutThenRejectSkipsNotify(t *testing.T) {
	h := newHarness(t, harnessConfig{
		agentTimeout: 50 * time.Millisecond,
		registry: capability.NewRegistry(
			okAgent(models.CapabilityCAPA, "capa ok"),
			blockingAgent(models.CapabilityGraph),
			okAgent(models.CapabilityVector, "vector ok"),
		),
	})
	id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")

	parked := h.waitParked(t, id)
	if parked.Summary.OverallStatus != models.OverallPartial {
		t.Fatalf("expected partial, got %s", parked.Summary.OverallStatus)
	}
	graph := parked.Summary.Sections[1]
	if graph.Capability != models.CapabilityGraph || !graph.Placeholder {
		t.Fatalf("expected graph placeholder section, got %+v", graph)
	}
	if graph.Text != "No data available (timed_out)." {
		t.Errorf("unexpected placeholder %q", graph.Text)
	}

	if err := h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalRejected}); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	final := h.waitTerminated(t, id)
	if h.primary.count() != 0 {
		t.Errorf("expected notify never called, got %d", h.primary.count())
	}
	if final.Notification != nil {
		t.Errorf("expected no notification record, got %+v", final.Notification)
	}
	if final.Decision.Outcome != models.ApprovalRejected {
		t.Errorf("expected rejected, got %s", final.Decision.Outcome)
	}
}

func TestController_AllAgentsFailApprovedStillSends(t *testing.T) {
	boom := models.NewAgentError(models.AgentErrorUnavailable, "source offline")
	h := newHarness(t, harnessConfig{
		registry: capability.NewRegistry(
			failingAgent(models.CapabilityCAPA, boom),
			failingAgent(models.CapabilityGraph, boom),
			failingAgent(models.CapabilityVector, errors.New("socket closed")),
		),
	})
	id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")

	parked := h.waitParked(t, id)
	if parked.Phase != models.PhaseAwaitingApproval {
		t.Fatalf("expected gate offered, got phase %s", parked.Phase)
	}
	if parked.Summary.OverallStatus != models.OverallFailed {
		t.Fatalf("expected failed, got %s", parked.Summary.OverallStatus)
	}
	if r := parked.AgentResults[parked.SubQuestions[2].ID]; r.Error == nil || r.Error.Kind != models.AgentErrorInternal {
		t.Errorf("expected internal error for plain error, got %+v", r.Error)
	}

	if err := h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalApproved}); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	final := h.waitTerminated(t, id)
	if h.primary.count() != 1 {
		t.Fatalf("expected notify called once, got %d", h.primary.count())
	}
	if !strings.Contains(h.primary.lastBody(), "No data available (failed).") {
		t.Errorf("expected failure text in body, got %q", h.primary.lastBody())
	}
	if final.Notification.Outcome != models.NotifierSent {
		t.Errorf("expected sent, got %s", final.Notification.Outcome)
	}
	if final.OverallStatus() != models.OverallFailed {
		t.Errorf("expected overall failed, got %s", final.OverallStatus())
	}
}

func TestController_ApprovalTimeoutRejectsWithoutNotify(t *testing.T) {
	h := newHarness(t, harnessConfig{approvalTimeout: 50 * time.Millisecond})
	id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")

	final := h.waitTerminated(t, id)
	if final.Decision == nil {
		t.Fatal("expected a decision recorded")
	}
	if final.Decision.Outcome != models.ApprovalRejected || final.Decision.Reason != models.ReasonApprovalTimeout {
		t.Errorf("expected rejected/approval_timeout, got %s/%s", final.Decision.Outcome, final.Decision.Reason)
	}
	if h.primary.count() != 0 {
		t.Errorf("expected no notification, got %d", h.primary.count())
	}
	if final.ApprovalDeadline != nil {
		t.Error("expected deadline cleared after resolution")
	}
}

func TestController_EditedDecisionSendsEditedText(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")
	h.waitParked(t, id)

	err := h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{
		Outcome:    models.ApprovalEdited,
		EditedText: "Reviewed: two investigations need follow-up.",
	})
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	h.waitTerminated(t, id)

	body := h.primary.lastBody()
	if !strings.Contains(body, "Reviewed: two investigations need follow-up.") {
		t.Errorf("expected edited text in body, got %q", body)
	}
	if strings.Contains(body, "**CAPA Analysis:**") {
		t.Error("expected consolidated text replaced by the edit")
	}
}

func TestController_DuplicateDecisionIgnored(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")
	h.waitParked(t, id)

	if err := h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalRejected}); err != nil {
		t.Fatalf("first decision failed: %v", err)
	}
	err := h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalApproved})
	if !errors.Is(err, ErrDecisionIgnored) {
		t.Fatalf("expected ErrDecisionIgnored, got %v", err)
	}

	final := h.waitTerminated(t, id)
	if final.Decision.Outcome != models.ApprovalRejected {
		t.Errorf("expected first decision to stand, got %s", final.Decision.Outcome)
	}
	if err := h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalApproved}); !errors.Is(err, ErrDecisionIgnored) {
		t.Errorf("expected ErrDecisionIgnored after termination, got %v", err)
	}
	if h.primary.count() != 0 {
		t.Errorf("expected no notification, got %d", h.primary.count())
	}
}

func TestController_LateDecisionLeavesStateUntouched(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		resolve func(h *harness, id string) error
	}{
		{
			name: "approved",
			resolve: func(h *harness, id string) error {
				return h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalApproved})
			},
		},
		{
			name: "edited",
			resolve: func(h *harness, id string) error {
				return h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalEdited, EditedText: "Reviewed text."})
			},
		},
		{
			name: "rejected",
			resolve: func(h *harness, id string) error {
				return h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalRejected})
			},
		},
		{
			name:    "approval timeout",
			timeout: 50 * time.Millisecond,
			resolve: func(h *harness, id string) error { return nil },
		},
		{
			name:    "cancelled",
			resolve: func(h *harness, id string) error { return h.ctrl.CancelRun(id) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessConfig{approvalTimeout: tt.timeout})
			id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")
			if tt.timeout == 0 {
				h.waitParked(t, id)
			}
			if err := tt.resolve(h, id); err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			h.waitTerminated(t, id)
			sends := h.primary.count()

			before, err := h.ctrl.GetRunState(id)
			if err != nil {
				t.Fatalf("GetRunState failed: %v", err)
			}
			for _, late := range []models.ApprovalDecision{
				{Outcome: models.ApprovalApproved},
				{Outcome: models.ApprovalEdited, EditedText: "too late"},
				{Outcome: models.ApprovalRejected},
			} {
				if err := h.ctrl.SubmitApprovalDecision(id, late); !errors.Is(err, ErrDecisionIgnored) {
					t.Errorf("late %s: expected ErrDecisionIgnored, got %v", late.Outcome, err)
				}
			}
			after, err := h.ctrl.GetRunState(id)
			if err != nil {
				t.Fatalf("GetRunState failed: %v", err)
			}
			if !reflect.DeepEqual(before, after) {
				t.Errorf("run state changed after late decisions:\nbefore %+v\nafter  %+v", before, after)
			}
			if h.primary.count() != sends {
				t.Errorf("expected %d sends, got %d", sends, h.primary.count())
			}
		})
	}
}

func TestController_InvalidDecision(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")
	h.waitParked(t, id)

	tests := []models.ApprovalDecision{
		{Outcome: "maybe"},
		{Outcome: models.ApprovalEdited},
		{Outcome: models.ApprovalApproved, EditedText: "sneaky"},
		{Outcome: models.ApprovalRejected, Reason: models.ReasonApprovalTimeout},
	}
	for _, d := range tests {
		if err := h.ctrl.SubmitApprovalDecision(id, d); !errors.Is(err, ErrInvalidDecision) {
			t.Errorf("decision %+v: expected ErrInvalidDecision, got %v", d, err)
		}
	}
	if s, _ := h.ctrl.GetRunState(id); s.Phase != models.PhaseAwaitingApproval {
		t.Errorf("expected run still parked, got %s", s.Phase)
	}
}

func TestController_CancelDuringDispatching(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	h := newHarness(t, harnessConfig{
		agentTimeout: time.Minute,
		registry: capability.NewRegistry(
			okAgent(models.CapabilityCAPA, "capa ok"),
			stubbornAgent(models.CapabilityGraph, release),
			blockingAgent(models.CapabilityVector),
		),
	})
	id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")

	deadline := time.Now().Add(waitLimit)
	for {
		s, _ := h.ctrl.GetRunState(id)
		if s.Phase == models.PhaseDispatching {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never reached dispatching, phase %s", s.Phase)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := h.ctrl.CancelRun(id); err != nil {
		t.Fatalf("CancelRun failed: %v", err)
	}
	final := h.waitTerminated(t, id)

	if final.Cause == nil || final.Cause.Kind != models.CauseCancelled {
		t.Fatalf("expected cancelled cause, got %+v", final.Cause)
	}
	if final.Summary != nil {
		t.Error("expected no summary for a run cancelled while dispatching")
	}
	if final.OverallStatus() != models.OverallFailed {
		t.Errorf("expected failed overall status, got %s", final.OverallStatus())
	}
	if h.primary.count() != 0 {
		t.Errorf("expected no notification, got %d", h.primary.count())
	}
	if err := h.ctrl.CancelRun(id); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("expected ErrNotCancellable after termination, got %v", err)
	}
}

func TestController_CancelWhileAwaitingApproval(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")
	h.waitParked(t, id)

	if err := h.ctrl.CancelRun(id); err != nil {
		t.Fatalf("CancelRun failed: %v", err)
	}
	final := h.waitTerminated(t, id)

	if final.Decision == nil || final.Decision.Outcome != models.ApprovalRejected || final.Decision.Reason != models.ReasonCancelled {
		t.Fatalf("expected rejected/cancelled, got %+v", final.Decision)
	}
	if final.Cause == nil || final.Cause.Kind != models.CauseCancelled {
		t.Errorf("expected cancelled cause, got %+v", final.Cause)
	}
	if final.Summary == nil {
		t.Error("expected summary kept for a run cancelled at the gate")
	}
	if err := h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalApproved}); !errors.Is(err, ErrDecisionIgnored) {
		t.Errorf("expected late approval ignored, got %v", err)
	}
	if h.primary.count() != 0 {
		t.Errorf("expected no notification, got %d", h.primary.count())
	}
}

func TestController_DecompositionFallback(t *testing.T) {
	h := newHarness(t, harnessConfig{
		decomposer: NewDecomposer(fixedCompleter("not json at all"), models.DefaultCapabilities()),
	})
	id := h.submit(t, "Tell me about brand 'Zentra'")

	parked := h.waitParked(t, id)
	if parked.DecompositionSource != models.DecompositionTemplate {
		t.Fatalf("expected template decomposition, got %s", parked.DecompositionSource)
	}
	if len(parked.SubQuestions) != 3 {
		t.Fatalf("expected 3 sub-questions, got %d", len(parked.SubQuestions))
	}
	if !strings.Contains(parked.SubQuestions[1].Text, "'Zentra'") {
		t.Errorf("expected brand substituted, got %q", parked.SubQuestions[1].Text)
	}
}

func TestController_TemplateFailureIsFatal(t *testing.T) {
	h := newHarness(t, harnessConfig{decomposer: brokenDecomposer{}})
	id := h.submit(t, "anything")

	final := h.waitTerminated(t, id)
	if final.Cause == nil || final.Cause.Kind != models.CauseFatal {
		t.Fatalf("expected fatal cause, got %+v", final.Cause)
	}
	if final.Cause.Phase != models.PhaseDecomposing {
		t.Errorf("expected decomposing phase, got %s", final.Cause.Phase)
	}
	if final.OverallStatus() != models.OverallFailed {
		t.Errorf("expected failed, got %s", final.OverallStatus())
	}
}

func TestController_PanicInPhaseIsFatal(t *testing.T) {
	h := newHarness(t, harnessConfig{decomposer: panickyDecomposer{}})
	id := h.submit(t, "anything")

	final := h.waitTerminated(t, id)
	if final.Cause == nil || final.Cause.Kind != models.CauseFatal {
		t.Fatalf("expected fatal cause, got %+v", final.Cause)
	}
	if !strings.Contains(final.Cause.Detail, "decomposer exploded") {
		t.Errorf("expected panic value in detail, got %q", final.Cause.Detail)
	}
}

func TestController_DriverErrors(t *testing.T) {
	h := newHarness(t, harnessConfig{})

	if _, err := h.ctrl.SubmitQuery("   "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
	if _, err := h.ctrl.GetRunState("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if err := h.ctrl.CancelRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if err := h.ctrl.SubmitApprovalDecision("missing", models.ApprovalDecision{Outcome: models.ApprovalApproved}); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}

	id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")
	if err := h.ctrl.SubmitQueryWithID(id, "again"); !errors.Is(err, ErrRunExists) {
		t.Errorf("expected ErrRunExists, got %v", err)
	}
	h.waitParked(t, id)
	if _, err := h.ctrl.Export(id); !errors.Is(err, ErrRunNotTerminal) {
		t.Errorf("expected ErrRunNotTerminal, got %v", err)
	}
}

func TestController_TerminatedRunIDCannotBeReused(t *testing.T) {
	db := openStore(t)
	h := newHarness(t, harnessConfig{opts: []Option{WithStore(db)}})

	if err := h.ctrl.SubmitQueryWithID("audit-1", "Summarize CAPA, graph, and trial data for Brand X"); err != nil {
		t.Fatalf("SubmitQueryWithID failed: %v", err)
	}
	h.waitParked(t, "audit-1")
	if err := h.ctrl.SubmitApprovalDecision("audit-1", models.ApprovalDecision{Outcome: models.ApprovalApproved}); err != nil {
		t.Fatalf("SubmitApprovalDecision failed: %v", err)
	}
	h.waitTerminated(t, "audit-1")

	if err := h.ctrl.SubmitQueryWithID("audit-1", "a different query"); !errors.Is(err, ErrRunExists) {
		t.Fatalf("expected ErrRunExists for a terminated id, got %v", err)
	}

	stored, err := db.GetRun("audit-1")
	if err != nil || stored == nil {
		t.Fatalf("expected stored run, got %+v (%v)", stored, err)
	}
	if stored.Phase != models.PhaseTerminated {
		t.Errorf("expected terminated, got %s", stored.Phase)
	}
	if stored.Query.Text != "Summarize CAPA, graph, and trial data for Brand X" {
		t.Errorf("expected original query kept, got %q", stored.Query.Text)
	}
	if stored.Notification == nil || stored.Notification.Outcome != models.NotifierSent {
		t.Errorf("expected original notification kept, got %+v", stored.Notification)
	}
}

func TestController_NoGateTimerAfterShutdown(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()
	if err := h.ctrl.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	r := newRun(context.Background(), &models.RunState{RunID: "late-park", Phase: models.PhaseAwaitingApproval})
	h.ctrl.armGate(r, time.Now())

	select {
	case <-r.parked:
	case <-time.After(waitLimit):
		t.Fatal("expected parked signalled")
	}
	time.Sleep(50 * time.Millisecond)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.gate != nil {
		t.Error("expected no gate armed after shutdown")
	}
	if r.state.Decision != nil {
		t.Errorf("expected no decision recorded, got %+v", r.state.Decision)
	}
}

func TestController_ExportAndSnapshotIsolation(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")

	parked := h.waitParked(t, id)
	parked.Summary.Sections[0].Text = "tampered"
	again, _ := h.ctrl.GetRunState(id)
	if again.Summary.Sections[0].Text == "tampered" {
		t.Fatal("expected GetRunState to return a copy")
	}

	h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalApproved})
	h.waitTerminated(t, id)

	data, err := h.ctrl.Export(id)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	var record models.RunState
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if record.Query.Text == "" || len(record.SubQuestions) != 3 || len(record.AgentResults) != 3 {
		t.Errorf("expected full audit record, got %+v", record)
	}
	if record.Summary == nil || record.Decision == nil || record.Notification == nil {
		t.Error("expected summary, decision and notification in export")
	}
}

func TestController_ConcurrentRunsAreIndependent(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ids := make([]string, 5)
	for i := range ids {
		ids[i] = h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")
	}
	for _, id := range ids {
		h.waitParked(t, id)
	}

	h.ctrl.SubmitApprovalDecision(ids[0], models.ApprovalDecision{Outcome: models.ApprovalApproved})
	h.ctrl.CancelRun(ids[1])
	h.waitTerminated(t, ids[0])
	h.waitTerminated(t, ids[1])

	for _, id := range ids[2:] {
		s, _ := h.ctrl.GetRunState(id)
		if s.Phase != models.PhaseAwaitingApproval {
			t.Errorf("run %s: expected still parked, got %s", id, s.Phase)
		}
	}
	if got := len(h.ctrl.List()); got != 5 {
		t.Errorf("expected 5 runs listed, got %d", got)
	}
}

func TestController_EmitsEvents(t *testing.T) {
	h := newHarness(t, harnessConfig{approvalTimeout: 20 * time.Millisecond})
	id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")
	h.waitTerminated(t, id)

	seen := map[EventType]int{}
	phases := []models.Phase{}
	timeout := time.After(waitLimit)
	for seen[EventRunTerminated] == 0 {
		select {
		case e := <-h.ctrl.Events():
			if e.RunID != id {
				t.Fatalf("unexpected run id %q", e.RunID)
			}
			seen[e.Type]++
			if e.Type == EventPhaseChanged {
				phases = append(phases, e.Phase)
			}
		case <-timeout:
			t.Fatalf("missing events, saw %v", seen)
		}
	}

	want := []models.Phase{models.PhaseDecomposing, models.PhaseDispatching, models.PhaseConsolidating, models.PhaseAwaitingApproval}
	if len(phases) != len(want) {
		t.Fatalf("expected phases %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d: expected %s, got %s", i, want[i], phases[i])
		}
	}
	if seen[EventAgentCompleted] != 3 || seen[EventGateResolved] != 1 {
		t.Errorf("unexpected event counts %v", seen)
	}
}

func TestController_SummarizerSetsNarrative(t *testing.T) {
	h := newHarness(t, harnessConfig{
		opts: []Option{WithSummarizer(NewLLMSummarizer(fixedCompleter("Executive: all clear."), 0.1))},
	})
	id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")

	parked := h.waitParked(t, id)
	if parked.Summary.Narrative != "Executive: all clear." {
		t.Errorf("expected narrative, got %q", parked.Summary.Narrative)
	}
}

func TestController_ShutdownRejectsWork(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()
	if err := h.ctrl.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := h.ctrl.SubmitQuery("late"); !errors.Is(err, ErrControllerClosed) {
		t.Errorf("expected ErrControllerClosed, got %v", err)
	}
	if err := h.ctrl.Shutdown(ctx); err != nil {
		t.Errorf("expected second Shutdown to be a no-op, got %v", err)
	}
}

// The notifier runs exactly once for approved and edited runs and never for
// rejection, approval timeout or cancellation at the gate.
func TestController_NotifierGating(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	type resolution int
	const (
		approve resolution = iota
		edit
		reject
		timeout
		cancel
	)

	properties.Property("delivery happens iff the decision releases it", prop.ForAll(
		func(pick int) bool {
			how := resolution(pick)
			hc := harnessConfig{}
			if how == timeout {
				hc.approvalTimeout = 10 * time.Millisecond
			}
			h := newHarness(t, hc)
			id := h.submit(t, "Summarize CAPA, graph, and trial data for Brand X")
			h.waitParked(t, id)

			switch how {
			case approve:
				h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalApproved})
			case edit:
				h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalEdited, EditedText: "edited"})
			case reject:
				h.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalRejected})
			case cancel:
				h.ctrl.CancelRun(id)
			}
			final := h.waitTerminated(t, id)

			released := how == approve || how == edit
			if released {
				return h.primary.count() == 1 && final.Notification != nil && final.Decision.Outcome.ReleasesDelivery()
			}
			return h.primary.count() == 0 && final.Notification == nil && !final.Decision.Outcome.ReleasesDelivery()
		},
		gen.IntRange(int(approve), int(cancel)),
	))

	properties.TestingRun(t)
}

func openStore(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.OpenAndMigrate(filepath.Join(t.TempDir(), "coordinator.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestController_PersistsAndRecoversParkedRun(t *testing.T) {
	db := openStore(t)

	first := newHarness(t, harnessConfig{opts: []Option{WithStore(db)}})
	id := first.submit(t, "Summarize CAPA, graph, and trial data for Brand X")
	first.waitParked(t, id)

	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()
	if err := first.ctrl.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	pending, err := db.ListPendingApprovals()
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected 1 pending approval after shutdown, got %d (%v)", len(pending), err)
	}

	second := newHarness(t, harnessConfig{opts: []Option{WithStore(db)}})
	if err := second.ctrl.Recover(ctx); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if err := second.ctrl.SubmitApprovalDecision(id, models.ApprovalDecision{Outcome: models.ApprovalApproved}); err != nil {
		t.Fatalf("approve after recovery failed: %v", err)
	}
	final := second.waitTerminated(t, id)
	if final.Notification == nil || final.Notification.Outcome != models.NotifierSent {
		t.Fatalf("expected sent after recovery, got %+v", final.Notification)
	}

	stored, err := db.GetRun(id)
	if err != nil || stored == nil || stored.Phase != models.PhaseTerminated {
		t.Fatalf("expected terminated run in store, got %+v (%v)", stored, err)
	}
	if pending, _ := db.ListPendingApprovals(); len(pending) != 0 {
		t.Errorf("expected pending approvals cleared, got %d", len(pending))
	}
}

func TestController_RecoverExpiredDeadlineTimesOut(t *testing.T) {
	db := openStore(t)

	first := newHarness(t, harnessConfig{opts: []Option{WithStore(db)}})
	id := first.submit(t, "Summarize CAPA, graph, and trial data for Brand X")
	first.waitParked(t, id)
	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()
	first.ctrl.Shutdown(ctx)

	later := func() time.Time { return time.Now().Add(2 * time.Hour) }
	second := newHarness(t, harnessConfig{opts: []Option{WithStore(db), WithClock(later)}})
	if err := second.ctrl.Recover(ctx); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	final := second.waitTerminated(t, id)
	if final.Decision == nil || final.Decision.Reason != models.ReasonApprovalTimeout {
		t.Fatalf("expected approval timeout, got %+v", final.Decision)
	}
	if second.primary.count() != 0 {
		t.Errorf("expected no notification, got %d", second.primary.count())
	}
}

func TestController_RecoverInterruptedRuns(t *testing.T) {
	db := openStore(t)
	now := time.Now().UTC()

	for _, tc := range []struct {
		id    string
		phase models.Phase
	}{
		{"run-dispatching", models.PhaseDispatching},
		{"run-notifying", models.PhaseNotifying},
	} {
		s := &models.RunState{
			RunID:     tc.id,
			Phase:     tc.phase,
			Query:     models.Query{RunID: tc.id, Text: "q", SubmittedAt: now},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := db.SaveRun(s); err != nil {
			t.Fatalf("seed %s: %v", tc.id, err)
		}
	}

	h := newHarness(t, harnessConfig{opts: []Option{WithStore(db)}})
	if err := h.ctrl.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	dispatching, _ := h.ctrl.GetRunState("run-dispatching")
	if dispatching.Phase != models.PhaseTerminated || dispatching.Cause == nil || dispatching.Cause.Kind != models.CauseInterrupted {
		t.Errorf("expected interrupted termination, got %+v", dispatching)
	}

	notifying, _ := h.ctrl.GetRunState("run-notifying")
	if notifying.Notification == nil || notifying.Notification.Outcome != models.NotifierFailed {
		t.Fatalf("expected failed notification, got %+v", notifying.Notification)
	}
	if !strings.Contains(notifying.Notification.Error, "unknown") {
		t.Errorf("expected unknown delivery detail, got %q", notifying.Notification.Error)
	}

	active, _ := db.ListActiveRuns()
	if len(active) != 0 {
		t.Errorf("expected no active runs after recovery, got %d", len(active))
	}
}
