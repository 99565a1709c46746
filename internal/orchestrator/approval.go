package orchestrator

import (
	"sync"
	"time"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// approvalGate is the suspend point of one run. It accepts exactly one
// decision: the first of an external decision, the deadline timer, or a
// cancellation. Nothing blocks on the gate; onResolve schedules the rest
// of the run.
type approvalGate struct {
	runID     string
	deadline  time.Time
	now       func() time.Time
	onResolve func(models.ApprovalDecision)

	mu       sync.Mutex
	timer    *time.Timer
	resolved bool
	decision models.ApprovalDecision
}

// newApprovalGate arms a gate that times out at deadline. A deadline in
// the past fires right away.
func newApprovalGate(runID string, deadline time.Time, now func() time.Time, onResolve func(models.ApprovalDecision)) *approvalGate {
	g := &approvalGate{
		runID:     runID,
		deadline:  deadline,
		now:       now,
		onResolve: onResolve,
	}

	wait := deadline.Sub(now())
	if wait < 0 {
		wait = 0
	}

	// Held across AfterFunc so an immediate expiry sees the timer assigned.
	g.mu.Lock()
	g.timer = time.AfterFunc(wait, g.expire)
	g.mu.Unlock()
	return g
}

func (g *approvalGate) expire() {
	g.resolve(models.ApprovalDecision{
		RunID:     g.runID,
		Outcome:   models.ApprovalRejected,
		Reason:    models.ReasonApprovalTimeout,
		DecidedAt: g.now(),
	})
}

// resolve accepts d if the gate is still open and reports whether it did.
func (g *approvalGate) resolve(d models.ApprovalDecision) bool {
	g.mu.Lock()
	if g.resolved {
		g.mu.Unlock()
		return false
	}
	g.resolved = true
	g.decision = d
	if g.timer != nil {
		g.timer.Stop()
	}
	g.mu.Unlock()

	if g.onResolve != nil {
		g.onResolve(d)
	}
	return true
}

// cancel resolves the gate as rejected because the run was cancelled.
func (g *approvalGate) cancel() bool {
	return g.resolve(models.ApprovalDecision{
		RunID:     g.runID,
		Outcome:   models.ApprovalRejected,
		Reason:    models.ReasonCancelled,
		DecidedAt: g.now(),
	})
}

// stop disarms the timer without resolving. The pending record stays so
// a later Recover can re-arm the gate.
func (g *approvalGate) stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
}

// Decision returns the accepted decision, if any.
func (g *approvalGate) Decision() (models.ApprovalDecision, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision, g.resolved
}
