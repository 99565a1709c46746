package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// unknownDeliveryDetail marks runs that stopped while notifying.
const unknownDeliveryDetail = "delivery state unknown: process stopped while notifying"

// Recover reloads the active runs of a previous process from the store.
// Submitted runs start over; parked runs get their gate re-armed with the
// remaining time, resolving at once as timed out when the deadline has
// passed; runs caught mid-phase terminate as interrupted.
func (c *Controller) Recover(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	active, err := c.store.ListActiveRuns()
	if err != nil {
		return fmt.Errorf("recover: list active runs: %w", err)
	}
	pending, err := c.store.ListPendingApprovals()
	if err != nil {
		return fmt.Errorf("recover: list pending approvals: %w", err)
	}
	deadlines := make(map[string]time.Time, len(pending))
	for _, p := range pending {
		deadlines[p.RunID] = p.Deadline
	}

	var errs []error
	recovered := make(map[string]bool, len(active))
	for _, s := range active {
		if err := ctx.Err(); err != nil {
			return err
		}
		recovered[s.RunID] = true
		if err := c.recoverRun(s, deadlines); err != nil {
			errs = append(errs, err)
		}
	}

	for id := range deadlines {
		if !recovered[id] {
			c.deletePending(id)
		}
	}

	c.logger.Info("recovery complete", zap.Int("runs", len(active)), zap.Int("pending_approvals", len(pending)))
	return errors.Join(errs...)
}

func (c *Controller) recoverRun(s *models.RunState, deadlines map[string]time.Time) error {
	r := newRun(c.baseCtx, s)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		r.cancel()
		return ErrControllerClosed
	}
	if _, exists := c.runs[s.RunID]; exists {
		c.mu.Unlock()
		r.cancel()
		return nil
	}
	c.runs[s.RunID] = r
	if s.Phase == models.PhaseSubmitted {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	logger := c.logger.With(zap.String("run_id", s.RunID), zap.String("phase", string(s.Phase)))

	switch s.Phase {
	case models.PhaseSubmitted:
		logger.Info("restarting submitted run")
		go func() {
			defer c.wg.Done()
			c.execute(r)
		}()

	case models.PhaseAwaitingApproval:
		deadline, ok := deadlines[s.RunID]
		if !ok && s.ApprovalDeadline != nil {
			deadline, ok = *s.ApprovalDeadline, true
		}
		if !ok {
			deadline = c.now()
		}
		r.update(func(st *models.RunState) { st.ApprovalDeadline = &deadline })
		logger.Info("re-arming approval gate", zap.Time("deadline", deadline))
		c.emit(Event{Type: EventApprovalRequested, RunID: s.RunID, Phase: models.PhaseAwaitingApproval, Message: deadline.Format(time.RFC3339)})
		c.armGate(r, deadline)

	case models.PhaseNotifying:
		r.update(func(st *models.RunState) {
			if st.Notification == nil {
				st.Notification = &models.NotificationRecord{Recipient: c.recipient}
			}
			st.Notification.Outcome = models.NotifierFailed
			st.Notification.Error = unknownDeliveryDetail
		})
		logger.Warn("run interrupted while notifying")
		c.terminate(r, &models.RunCause{Kind: models.CauseInterrupted, Phase: s.Phase, Detail: unknownDeliveryDetail})

	case models.PhaseDecomposing, models.PhaseDispatching, models.PhaseConsolidating:
		logger.Warn("run interrupted mid-phase")
		c.terminate(r, &models.RunCause{Kind: models.CauseInterrupted, Phase: s.Phase, Detail: "process stopped during " + string(s.Phase)})

	default:
		c.fail(r, &FatalError{Phase: s.Phase, Err: fmt.Errorf("cannot recover run in phase %q", s.Phase)})
	}
	return nil
}
