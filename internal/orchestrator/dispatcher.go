package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/capability"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// DefaultAgentTimeout bounds each agent call when no timeout is configured.
const DefaultAgentTimeout = 30 * time.Second

// AgentSource resolves the agent serving a capability.
type AgentSource interface {
	Get(c models.Capability) (capability.Agent, bool)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the dispatcher's logger.
func WithDispatcherLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDispatcherClock sets the clock used for result timestamps.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithResultHook registers a callback invoked once per recorded result.
func WithResultHook(fn func(runID string, r models.AgentResult)) DispatcherOption {
	return func(d *Dispatcher) { d.onResult = fn }
}

// Dispatcher fans sub-questions out to their capability agents concurrently
// and joins on every terminal result.
type Dispatcher struct {
	agents   AgentSource
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
	onResult func(runID string, r models.AgentResult)
}

// NewDispatcher creates a Dispatcher. A non-positive timeout uses DefaultAgentTimeout.
func NewDispatcher(agents AgentSource, timeout time.Duration, opts ...DispatcherOption) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultAgentTimeout
	}
	d := &Dispatcher{
		agents:  agents,
		timeout: timeout,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Timeout returns the per-agent timeout.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// Dispatch runs every sub-question against its agent and returns one
// terminal result per sub-question id. It never returns early and never
// waits longer than the agent timeout for any single call.
func (d *Dispatcher) Dispatch(ctx context.Context, runID string, subs []models.SubQuestion) map[string]models.AgentResult {
	results := make(map[string]models.AgentResult, len(subs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	record := func(r models.AgentResult) {
		mu.Lock()
		if _, exists := results[r.SubQuestionID]; exists {
			mu.Unlock()
			d.logger.Warn("dropping duplicate agent result",
				zap.String("run_id", runID),
				zap.String("sub_question_id", r.SubQuestionID))
			return
		}
		results[r.SubQuestionID] = r
		mu.Unlock()

		if d.onResult != nil {
			d.onResult(runID, r)
		}
	}

	for _, sq := range subs {
		wg.Add(1)
		go func(sq models.SubQuestion) {
			defer wg.Done()
			record(d.call(ctx, runID, sq))
		}(sq)
	}
	wg.Wait()

	return results
}

type agentOutcome struct {
	payload *models.Payload
	err     error
}

// call executes one agent call under the agent timeout. The agent runs in
// its own goroutine writing to a buffered channel, so an abandoned call
// never blocks.
func (d *Dispatcher) call(parent context.Context, runID string, sq models.SubQuestion) models.AgentResult {
	result := models.AgentResult{
		SubQuestionID: sq.ID,
		Capability:    sq.Capability,
		StartedAt:     d.now(),
	}
	logger := d.logger.With(
		zap.String("run_id", runID),
		zap.String("sub_question_id", sq.ID),
		zap.String("capability", string(sq.Capability)))

	if parent.Err() != nil {
		return d.finish(result, models.AgentStatusFailed, nil,
			models.NewAgentError(models.AgentErrorCancelled, "run cancelled before dispatch"))
	}

	var agent capability.Agent
	var ok bool
	if d.agents != nil {
		agent, ok = d.agents.Get(sq.Capability)
	}
	if !ok || agent == nil {
		return d.finish(result, models.AgentStatusFailed, nil,
			models.NewAgentError(models.AgentErrorUnavailable, "no agent registered for capability %q", sq.Capability))
	}

	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()
	rc := models.RunContext{
		RunID:         runID,
		SubQuestionID: sq.ID,
		Capability:    sq.Capability,
		Deadline:      deadline,
	}

	done := make(chan agentOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- agentOutcome{err: models.NewAgentError(models.AgentErrorPanic, "agent panicked: %v", r)}
			}
		}()
		payload, err := agent.Query(ctx, sq.Text, rc)
		done <- agentOutcome{payload: payload, err: err}
	}()

	select {
	case o := <-done:
		status, payload, aerr := classifyOutcome(parent, ctx, o)
		if aerr != nil {
			logger.Info("agent call failed", zap.String("status", string(status)), zap.String("kind", string(aerr.Kind)))
		}
		return d.finish(result, status, payload, aerr)
	case <-ctx.Done():
		if parent.Err() != nil {
			logger.Info("agent call abandoned: run cancelled")
			return d.finish(result, models.AgentStatusFailed, nil,
				models.NewAgentError(models.AgentErrorCancelled, "run cancelled"))
		}
		logger.Info("agent call timed out", zap.Duration("timeout", d.timeout))
		return d.finish(result, models.AgentStatusTimedOut, nil,
			models.NewAgentError(models.AgentErrorTimeout, "no response within %s", d.timeout))
	}
}

func (d *Dispatcher) finish(r models.AgentResult, status models.AgentStatus, payload *models.Payload, aerr *models.AgentError) models.AgentResult {
	r.Status = status
	r.Payload = payload
	r.Error = aerr
	r.CompletedAt = d.now()
	return r
}

// classifyOutcome maps an agent's return values onto a terminal status.
func classifyOutcome(parent, ctx context.Context, o agentOutcome) (models.AgentStatus, *models.Payload, *models.AgentError) {
	if o.err == nil {
		if o.payload == nil {
			return models.AgentStatusOk, &models.Payload{}, nil
		}
		return models.AgentStatusOk, o.payload, nil
	}

	var aerr *models.AgentError
	if errors.As(o.err, &aerr) {
		if aerr.Kind == models.AgentErrorTimeout {
			return models.AgentStatusTimedOut, nil, aerr
		}
		return models.AgentStatusFailed, nil, aerr
	}

	switch {
	case parent.Err() != nil || errors.Is(o.err, context.Canceled):
		return models.AgentStatusFailed, nil, models.NewAgentError(models.AgentErrorCancelled, "%v", o.err)
	case ctx.Err() == context.DeadlineExceeded || errors.Is(o.err, context.DeadlineExceeded):
		return models.AgentStatusTimedOut, nil, models.NewAgentError(models.AgentErrorTimeout, "%v", o.err)
	default:
		return models.AgentStatusFailed, nil, &models.AgentError{Kind: models.AgentErrorInternal, Detail: fmt.Sprint(o.err)}
	}
}
