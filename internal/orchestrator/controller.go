package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/notifier"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/state"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// Errors returned by the driver API.
var (
	ErrRunNotFound         = errors.New("run not found")
	ErrRunExists           = errors.New("run already exists")
	ErrEmptyQuery          = errors.New("query text is empty")
	ErrNotAwaitingApproval = errors.New("run is not awaiting approval")
	ErrDecisionIgnored     = errors.New("approval gate already resolved, decision ignored")
	ErrNotCancellable      = errors.New("run can no longer be cancelled")
	ErrRunNotTerminal      = errors.New("run has not terminated")
	ErrInvalidDecision     = errors.New("invalid approval decision")
	ErrControllerClosed    = errors.New("controller is shut down")
)

// FatalError is a controller-level failure that ends a run. It is recorded
// as the run's cause and never propagated to the caller.
type FatalError struct {
	Phase models.Phase
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal in %s: %v", e.Phase, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// RunStore persists runs and the pending records of parked runs.
type RunStore interface {
	SaveRun(s *models.RunState) error
	GetRun(id string) (*models.RunState, error)
	ListActiveRuns() ([]*models.RunState, error)
	SavePendingApproval(p state.PendingApproval) error
	DeletePendingApproval(runID string) error
	ListPendingApprovals() ([]state.PendingApproval, error)
}

// QueryDecomposer produces the sub-questions of a query.
type QueryDecomposer interface {
	Decompose(ctx context.Context, q models.Query) ([]models.SubQuestion, error)
	Template(q models.Query) ([]models.SubQuestion, error)
}

// AgentDispatcher runs sub-questions against capability agents.
type AgentDispatcher interface {
	Dispatch(ctx context.Context, runID string, subs []models.SubQuestion) map[string]models.AgentResult
}

// DeliveryDispatcher delivers an approved summary.
type DeliveryDispatcher interface {
	Notify(ctx context.Context, recipient, subject, body string) models.NotificationRecord
}

// run is the controller's handle on one active run. state is written only
// by the goroutine owning the current phase; mu guards snapshots.
type run struct {
	mu              sync.RWMutex
	state           *models.RunState
	ctx             context.Context
	cancel          context.CancelFunc
	gate            *approvalGate
	cancelRequested bool

	parkOnce sync.Once
	parked   chan struct{}
	doneOnce sync.Once
	done     chan struct{}
}

func newRun(parent context.Context, s *models.RunState) *run {
	ctx, cancel := context.WithCancel(parent)
	return &run{
		state:  s,
		ctx:    ctx,
		cancel: cancel,
		parked: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (r *run) snapshot() *models.RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

func (r *run) phase() models.Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Phase
}

func (r *run) update(fn func(s *models.RunState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.state)
}

// Controller is the workflow state machine. It owns every active run and
// is the only writer of RunState.
type Controller struct {
	settings   Settings
	decomposer QueryDecomposer
	dispatcher AgentDispatcher
	notify     DeliveryDispatcher

	logger     *zap.Logger
	store      RunStore
	now        func() time.Time
	summarizer Summarizer
	recipient  string
	emitter    *EventEmitter

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.RWMutex
	runs   map[string]*run
	closed bool
}

// NewController creates a Controller.
func NewController(cfg Settings, decomposer QueryDecomposer, dispatcher AgentDispatcher, notify DeliveryDispatcher, opts ...Option) *Controller {
	o := defaultControllerOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = DefaultApprovalTimeout
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Controller{
		settings:   cfg,
		decomposer: decomposer,
		dispatcher: dispatcher,
		notify:     notify,
		logger:     o.logger,
		store:      o.store,
		now:        o.now,
		summarizer: o.summarizer,
		recipient:  o.recipient,
		emitter:    NewEventEmitter(o.eventBuffer, o.logger),
		baseCtx:    ctx,
		stop:       stop,
		runs:       make(map[string]*run),
	}
}

// Events returns the controller's event stream. It is closed by Shutdown.
func (c *Controller) Events() <-chan Event {
	return c.emitter.Events()
}

// DroppedEvents returns how many events were dropped on a full channel.
func (c *Controller) DroppedEvents() uint64 {
	return c.emitter.DroppedCount()
}

// SubmitQuery creates a run for text and starts it. It returns the run ID
// without waiting for any phase to complete.
func (c *Controller) SubmitQuery(text string) (string, error) {
	id := uuid.NewString()
	if err := c.SubmitQueryWithID(id, text); err != nil {
		return "", err
	}
	return id, nil
}

// SubmitQueryWithID is SubmitQuery with a caller-chosen run ID, used when
// the ID was handed out before the query reached the controller.
func (c *Controller) SubmitQueryWithID(id, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyQuery
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("submit: empty run id")
	}
	// Terminated runs leave memory once persisted, so the store is the
	// authority on whether an id was ever used.
	prior, err := c.archived(id)
	if err != nil {
		return err
	}
	if prior != nil {
		return ErrRunExists
	}

	now := c.now()
	r := newRun(c.baseCtx, &models.RunState{
		RunID:     id,
		Phase:     models.PhaseSubmitted,
		Query:     models.Query{RunID: id, Text: text, SubmittedAt: now},
		CreatedAt: now,
		UpdatedAt: now,
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		r.cancel()
		return ErrControllerClosed
	}
	if _, exists := c.runs[id]; exists {
		c.mu.Unlock()
		r.cancel()
		return ErrRunExists
	}
	c.runs[id] = r
	c.wg.Add(1)
	c.mu.Unlock()

	c.persist(r.snapshot())
	c.logger.Info("run submitted", zap.String("run_id", id))
	c.emit(Event{Type: EventRunSubmitted, RunID: id, Phase: models.PhaseSubmitted, Message: text})

	go func() {
		defer c.wg.Done()
		c.execute(r)
	}()
	return nil
}

// GetRunState returns a deep copy of the run's current state.
func (c *Controller) GetRunState(id string) (*models.RunState, error) {
	if r, ok := c.active(id); ok {
		return r.snapshot(), nil
	}
	s, err := c.archived(id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrRunNotFound
	}
	return s, nil
}

// List returns snapshots of the runs held in memory, oldest first.
func (c *Controller) List() []models.RunState {
	c.mu.RLock()
	runs := make([]*run, 0, len(c.runs))
	for _, r := range c.runs {
		runs = append(runs, r)
	}
	c.mu.RUnlock()

	out := make([]models.RunState, 0, len(runs))
	for _, r := range runs {
		out = append(out, *r.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// SubmitApprovalDecision offers an external decision to the run's gate.
// Only the first resolution of a gate is accepted; later decisions return
// ErrDecisionIgnored and leave the run untouched.
func (c *Controller) SubmitApprovalDecision(id string, d models.ApprovalDecision) error {
	d.RunID = id
	if d.Reason == "" {
		d.Reason = models.ReasonReviewer
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = c.now()
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	if d.Reason != models.ReasonReviewer {
		return fmt.Errorf("%w: reason %q is reserved", ErrInvalidDecision, d.Reason)
	}
	if c.isClosed() {
		return ErrControllerClosed
	}

	r, ok := c.active(id)
	if !ok {
		s, err := c.archived(id)
		if err != nil {
			return err
		}
		if s != nil && s.Phase.IsTerminal() {
			c.decisionIgnored(id, s.Phase, d)
			return ErrDecisionIgnored
		}
		return ErrRunNotFound
	}

	r.mu.RLock()
	gate := r.gate
	phase := r.state.Phase
	r.mu.RUnlock()

	if gate == nil {
		if phase == models.PhaseNotifying || phase.IsTerminal() {
			c.decisionIgnored(id, phase, d)
			return ErrDecisionIgnored
		}
		return ErrNotAwaitingApproval
	}
	if !gate.resolve(d) {
		c.decisionIgnored(id, phase, d)
		return ErrDecisionIgnored
	}
	return nil
}

// CancelRun cancels a run that has not started notifying. A parked run's
// gate resolves as rejected; a running phase is abandoned and the run
// terminates with a cancelled cause.
func (c *Controller) CancelRun(id string) error {
	if c.isClosed() {
		return ErrControllerClosed
	}

	r, ok := c.active(id)
	if !ok {
		s, err := c.archived(id)
		if err != nil {
			return err
		}
		if s != nil {
			return ErrNotCancellable
		}
		return ErrRunNotFound
	}

	r.mu.Lock()
	if !r.state.Phase.Cancellable() {
		r.mu.Unlock()
		return ErrNotCancellable
	}
	if gate := r.gate; gate != nil {
		r.mu.Unlock()
		if !gate.cancel() {
			return ErrNotCancellable
		}
		return nil
	}
	r.cancelRequested = true
	phase := r.state.Phase
	r.mu.Unlock()

	c.logger.Info("run cancel requested", zap.String("run_id", id), zap.String("phase", string(phase)))
	r.cancel()
	return nil
}

// Export returns the audit record of a terminated run as indented JSON.
func (c *Controller) Export(id string) ([]byte, error) {
	s, err := c.GetRunState(id)
	if err != nil {
		return nil, err
	}
	if !s.Phase.IsTerminal() {
		return nil, ErrRunNotTerminal
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export run %s: %w", id, err)
	}
	return data, nil
}

// WaitParked blocks until the run is awaiting approval or has terminated.
func (c *Controller) WaitParked(ctx context.Context, id string) (*models.RunState, error) {
	return c.wait(ctx, id, true)
}

// WaitTerminated blocks until the run has terminated.
func (c *Controller) WaitTerminated(ctx context.Context, id string) (*models.RunState, error) {
	return c.wait(ctx, id, false)
}

func (c *Controller) wait(ctx context.Context, id string, parked bool) (*models.RunState, error) {
	r, ok := c.active(id)
	if !ok {
		return c.GetRunState(id)
	}
	var parkedCh <-chan struct{}
	if parked {
		parkedCh = r.parked
	}
	select {
	case <-r.done:
	case <-parkedCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.snapshot(), nil
}

// Shutdown stops accepting work, disarms approval timers and waits for
// in-flight phases to finish. Parked runs stay persisted for Recover. If
// ctx expires first, running phases are interrupted.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	runs := make([]*run, 0, len(c.runs))
	for _, r := range c.runs {
		runs = append(runs, r)
	}
	c.mu.Unlock()

	for _, r := range runs {
		r.mu.RLock()
		gate := r.gate
		r.mu.RUnlock()
		if gate != nil {
			gate.stop()
		}
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		c.logger.Warn("shutdown deadline reached, interrupting runs")
	}
	c.stop()
	c.emitter.Close()
	return err
}

// execute drives a run from Submitted to the approval gate.
func (c *Controller) execute(r *run) {
	defer func() {
		if p := recover(); p != nil {
			c.fail(r, &FatalError{Phase: r.phase(), Err: fmt.Errorf("panic: %v", p)})
		}
	}()

	if err := c.advance(r, models.PhaseDecomposing); err != nil {
		c.fail(r, err)
		return
	}
	if c.stopIfCancelled(r) {
		return
	}

	q := r.snapshot().Query
	subs, source, err := c.decompose(r.ctx, q)
	if err != nil {
		c.fail(r, &FatalError{Phase: models.PhaseDecomposing, Err: err})
		return
	}
	r.update(func(s *models.RunState) {
		s.SubQuestions = subs
		s.DecompositionSource = source
	})
	if c.stopIfCancelled(r) {
		return
	}

	if err := c.advance(r, models.PhaseDispatching); err != nil {
		c.fail(r, err)
		return
	}
	results := c.dispatcher.Dispatch(r.ctx, q.RunID, subs)
	r.update(func(s *models.RunState) { s.AgentResults = results })
	for _, sq := range subs {
		if res, ok := results[sq.ID]; ok {
			c.emit(Event{
				Type:          EventAgentCompleted,
				RunID:         q.RunID,
				Phase:         models.PhaseDispatching,
				SubQuestionID: sq.ID,
				Capability:    sq.Capability,
				Message:       string(res.Status),
			})
		}
	}
	if c.stopIfCancelled(r) {
		return
	}

	if err := c.advance(r, models.PhaseConsolidating); err != nil {
		c.fail(r, err)
		return
	}
	summary := Consolidate(q.RunID, subs, results, c.now())
	c.narrate(r.ctx, q, &summary)
	r.update(func(s *models.RunState) { s.Summary = &summary })
	if c.stopIfCancelled(r) {
		return
	}

	c.park(r)
}

// decompose runs the reasoning step and falls back to the template on any
// DecompositionError or structurally invalid result.
func (c *Controller) decompose(ctx context.Context, q models.Query) ([]models.SubQuestion, models.DecompositionSource, error) {
	subs, err := c.decomposer.Decompose(ctx, q)
	if err == nil {
		if err = validateSubQuestions(subs); err == nil {
			return subs, models.DecompositionReasoned, nil
		}
	}

	c.logger.Warn("decomposition failed, using template",
		zap.String("run_id", q.RunID), zap.Error(err))
	c.emit(Event{Type: EventDecompositionFallback, RunID: q.RunID, Phase: models.PhaseDecomposing, Error: err})

	subs, terr := c.decomposer.Template(q)
	if terr == nil {
		terr = validateSubQuestions(subs)
	}
	if terr != nil {
		return nil, "", fmt.Errorf("template decomposition: %w", terr)
	}
	return subs, models.DecompositionTemplate, nil
}

// validateSubQuestions checks unique IDs and unique contiguous ordinals.
func validateSubQuestions(subs []models.SubQuestion) error {
	if len(subs) == 0 {
		return errors.New("no sub-questions")
	}
	ids := make(map[string]bool, len(subs))
	ordinals := make(map[int]bool, len(subs))
	for _, sq := range subs {
		if sq.ID == "" || ids[sq.ID] {
			return fmt.Errorf("sub-question id %q is empty or duplicated", sq.ID)
		}
		if sq.Ordinal < 0 || sq.Ordinal >= len(subs) || ordinals[sq.Ordinal] {
			return fmt.Errorf("sub-question ordinal %d is out of range or duplicated", sq.Ordinal)
		}
		if !sq.Capability.Valid() {
			return fmt.Errorf("sub-question %s has unknown capability %q", sq.ID, sq.Capability)
		}
		ids[sq.ID] = true
		ordinals[sq.Ordinal] = true
	}
	return nil
}

func (c *Controller) narrate(ctx context.Context, q models.Query, summary *models.ConsolidatedSummary) {
	if c.summarizer == nil {
		return
	}
	text, err := c.summarizer.Summarize(ctx, q, *summary)
	if err != nil {
		c.logger.Warn("narrative summary failed", zap.String("run_id", q.RunID), zap.Error(err))
		return
	}
	summary.Narrative = text
}

// park moves the run to AwaitingApproval, persists the pending record and
// arms the gate. No goroutine waits on the gate.
func (c *Controller) park(r *run) {
	now := c.now()
	deadline := now.Add(c.settings.ApprovalTimeout)

	r.mu.Lock()
	from := r.state.Phase
	if r.cancelRequested {
		r.mu.Unlock()
		c.terminate(r, &models.RunCause{Kind: models.CauseCancelled, Phase: from, Detail: "cancelled by request"})
		return
	}
	if !from.CanTransitionTo(models.PhaseAwaitingApproval) {
		r.mu.Unlock()
		c.fail(r, illegalTransition(from, models.PhaseAwaitingApproval))
		return
	}
	r.state.Phase = models.PhaseAwaitingApproval
	r.state.UpdatedAt = now
	r.state.ApprovalDeadline = &deadline
	id := r.state.RunID
	snap := r.state.Clone()
	r.mu.Unlock()

	c.persist(snap)
	c.savePending(state.PendingApproval{RunID: id, RequestedAt: now, Deadline: deadline})
	c.logger.Info("awaiting approval", zap.String("run_id", id), zap.Time("deadline", deadline))
	c.emit(Event{Type: EventPhaseChanged, RunID: id, Phase: models.PhaseAwaitingApproval, Message: string(from) + " -> " + string(models.PhaseAwaitingApproval)})
	c.emit(Event{Type: EventApprovalRequested, RunID: id, Phase: models.PhaseAwaitingApproval, Message: deadline.Format(time.RFC3339)})

	c.armGate(r, deadline)
}

// armGate attaches a gate to a parked run. A cancel that arrived while the
// run was being parked resolves the gate at once. After Shutdown no timer is
// armed; the pending record is left for Recover.
func (c *Controller) armGate(r *run, deadline time.Time) {
	c.mu.RLock()
	r.mu.Lock()
	id := r.state.RunID
	if c.closed {
		r.mu.Unlock()
		c.mu.RUnlock()
		c.logger.Info("controller closed, gate left pending for recovery", zap.String("run_id", id))
		r.parkOnce.Do(func() { close(r.parked) })
		return
	}
	gate := newApprovalGate(id, deadline, c.now, func(d models.ApprovalDecision) { c.onGateResolved(r, d) })
	r.gate = gate
	cancelled := r.cancelRequested
	r.mu.Unlock()
	c.mu.RUnlock()

	if cancelled {
		gate.cancel()
	}
	r.parkOnce.Do(func() { close(r.parked) })
}

// onGateResolved schedules the rest of the run after the gate resolves.
func (c *Controller) onGateResolved(r *run, d models.ApprovalDecision) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn("controller closed, approval continuation left for recovery",
			zap.String("run_id", d.RunID), zap.String("outcome", string(d.Outcome)))
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.afterApproval(r, d)
	}()
}

// afterApproval records the decision and either notifies or terminates.
func (c *Controller) afterApproval(r *run, d models.ApprovalDecision) {
	defer func() {
		if p := recover(); p != nil {
			c.fail(r, &FatalError{Phase: r.phase(), Err: fmt.Errorf("panic: %v", p)})
		}
	}()

	decision := d
	r.update(func(s *models.RunState) {
		s.Decision = &decision
		s.ApprovalDeadline = nil
		s.UpdatedAt = c.now()
	})
	c.deletePending(d.RunID)
	c.logger.Info("approval gate resolved",
		zap.String("run_id", d.RunID),
		zap.String("outcome", string(d.Outcome)),
		zap.String("reason", string(d.Reason)))
	c.emit(Event{Type: EventGateResolved, RunID: d.RunID, Phase: models.PhaseAwaitingApproval, Message: string(d.Outcome) + "/" + string(d.Reason)})

	if !d.Outcome.ReleasesDelivery() {
		var cause *models.RunCause
		if d.Reason == models.ReasonCancelled {
			cause = &models.RunCause{Kind: models.CauseCancelled, Phase: models.PhaseAwaitingApproval, Detail: "cancelled while awaiting approval"}
		}
		c.terminate(r, cause)
		return
	}

	if err := c.advance(r, models.PhaseNotifying); err != nil {
		c.fail(r, err)
		return
	}

	snap := r.snapshot()
	if snap.Summary == nil {
		c.fail(r, &FatalError{Phase: models.PhaseNotifying, Err: errors.New("no summary to deliver")})
		return
	}
	text := Render(*snap.Summary)
	if d.Outcome == models.ApprovalEdited {
		text = d.EditedText
	}

	now := c.now()
	subject := notifier.FormatSubject(now)
	body := notifier.FormatBody(notifier.Body{
		RunID:       snap.RunID,
		Query:       snap.Query.Text,
		Text:        text,
		GeneratedAt: now,
	})

	var rec models.NotificationRecord
	if c.notify == nil {
		rec = models.NotificationRecord{
			Outcome:   models.NotifierFailed,
			Recipient: c.recipient,
			Subject:   subject,
			Error:     "no notifier configured",
		}
	} else {
		// Notifying is not cancellable, so the send outlives cancellation of the run.
		rec = c.notify.Notify(context.WithoutCancel(r.ctx), c.recipient, subject, body)
	}
	r.update(func(s *models.RunState) { s.Notification = &rec })

	c.logger.Info("notification dispatched",
		zap.String("run_id", snap.RunID),
		zap.String("outcome", string(rec.Outcome)),
		zap.Int("attempts", len(rec.Attempts)))
	c.emit(Event{Type: EventNotification, RunID: snap.RunID, Phase: models.PhaseNotifying, Message: string(rec.Outcome)})
	c.terminate(r, nil)
}

// advance performs a forward transition and persists the new phase.
func (c *Controller) advance(r *run, next models.Phase) error {
	r.mu.Lock()
	from := r.state.Phase
	if !from.CanTransitionTo(next) {
		r.mu.Unlock()
		return illegalTransition(from, next)
	}
	r.state.Phase = next
	r.state.UpdatedAt = c.now()
	snap := r.state.Clone()
	r.mu.Unlock()

	c.persist(snap)
	c.logger.Debug("phase changed",
		zap.String("run_id", snap.RunID),
		zap.String("phase", string(next)))
	c.emit(Event{Type: EventPhaseChanged, RunID: snap.RunID, Phase: next, Message: string(from) + " -> " + string(next)})
	return nil
}

func illegalTransition(from, to models.Phase) *FatalError {
	return &FatalError{Phase: from, Err: fmt.Errorf("illegal transition %s -> %s", from, to)}
}

// stopIfCancelled terminates the run if its context has ended.
func (c *Controller) stopIfCancelled(r *run) bool {
	if r.ctx.Err() == nil {
		return false
	}
	r.mu.RLock()
	requested := r.cancelRequested
	phase := r.state.Phase
	r.mu.RUnlock()

	cause := &models.RunCause{Kind: models.CauseCancelled, Phase: phase, Detail: "cancelled by request"}
	if !requested {
		cause = &models.RunCause{Kind: models.CauseInterrupted, Phase: phase, Detail: "controller shut down"}
	}
	c.terminate(r, cause)
	return true
}

// fail records err as the run's fatal cause and terminates it.
func (c *Controller) fail(r *run, err error) {
	var fe *FatalError
	if !errors.As(err, &fe) {
		fe = &FatalError{Phase: r.phase(), Err: err}
	}
	c.logger.Error("run failed",
		zap.String("run_id", r.snapshot().RunID),
		zap.String("phase", string(fe.Phase)),
		zap.Error(fe.Err))
	c.terminate(r, &models.RunCause{Kind: models.CauseFatal, Phase: fe.Phase, Detail: fe.Err.Error()})
}

// terminate moves the run to Terminated. Terminating twice is a no-op.
func (c *Controller) terminate(r *run, cause *models.RunCause) {
	r.mu.Lock()
	if r.state.Phase.IsTerminal() {
		r.mu.Unlock()
		return
	}
	now := c.now()
	from := r.state.Phase
	r.state.Phase = models.PhaseTerminated
	r.state.UpdatedAt = now
	r.state.TerminatedAt = &now
	r.state.ApprovalDeadline = nil
	if cause != nil && r.state.Cause == nil {
		if cause.Phase == "" {
			cause.Phase = from
		}
		r.state.Cause = cause
	}
	gate := r.gate
	snap := r.state.Clone()
	r.mu.Unlock()

	if gate != nil {
		gate.stop()
	}
	r.cancel()

	persisted := c.persist(snap)
	if persisted && c.store != nil {
		c.mu.Lock()
		delete(c.runs, snap.RunID)
		c.mu.Unlock()
	}

	fields := []zap.Field{
		zap.String("run_id", snap.RunID),
		zap.String("from", string(from)),
		zap.String("overall_status", string(snap.OverallStatus())),
	}
	if snap.Cause != nil {
		fields = append(fields, zap.String("cause", string(snap.Cause.Kind)))
	}
	c.logger.Info("run terminated", fields...)
	c.emit(Event{Type: EventRunTerminated, RunID: snap.RunID, Phase: models.PhaseTerminated, Message: string(snap.OverallStatus())})

	r.parkOnce.Do(func() { close(r.parked) })
	r.doneOnce.Do(func() { close(r.done) })
}

func (c *Controller) decisionIgnored(id string, phase models.Phase, d models.ApprovalDecision) {
	c.logger.Info("decision ignored, gate already resolved",
		zap.String("run_id", id),
		zap.String("phase", string(phase)),
		zap.String("outcome", string(d.Outcome)))
	c.emit(Event{Type: EventDecisionIgnored, RunID: id, Phase: phase, Message: string(d.Outcome)})
}

func (c *Controller) active(id string) (*run, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.runs[id]
	return r, ok
}

func (c *Controller) archived(id string) (*models.RunState, error) {
	if c.store == nil {
		return nil, nil
	}
	s, err := c.store.GetRun(id)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return s, nil
}

func (c *Controller) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Controller) emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = c.now()
	}
	c.emitter.Emit(e)
}

// persist saves a snapshot and reports success. Storage errors are logged;
// they never change the course of a run.
func (c *Controller) persist(s *models.RunState) bool {
	if c.store == nil {
		return false
	}
	if err := c.store.SaveRun(s); err != nil {
		c.logger.Error("save run failed", zap.String("run_id", s.RunID), zap.Error(err))
		return false
	}
	return true
}

func (c *Controller) savePending(p state.PendingApproval) {
	if c.store == nil {
		return
	}
	if err := c.store.SavePendingApproval(p); err != nil {
		c.logger.Error("save pending approval failed", zap.String("run_id", p.RunID), zap.Error(err))
	}
}

func (c *Controller) deletePending(runID string) {
	if c.store == nil {
		return
	}
	if err := c.store.DeletePendingApproval(runID); err != nil {
		c.logger.Error("delete pending approval failed", zap.String("run_id", runID), zap.Error(err))
	}
}
