package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/capability"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/llm"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

const waitLimit = 3 * time.Second

// validDecomposition is a reasoning-step response naming every default capability.
const validDecomposition = `{
  "reasoning": "one question per source",
  "sub_questions": [
    {"capability": "capa", "question": "Q1: How many open CAPAs exist for Brand X?"},
    {"capability": "graph", "question": "Q2: List investigations for brand X"},
    {"capability": "vector", "question": "Q3: Summarize clinical trials for brand X"}
  ]
}`

func okAgent(c models.Capability, summary string) capability.Agent {
	return capability.Func{Cap: c, Fn: func(ctx context.Context, text string, rc models.RunContext) (*models.Payload, error) {
		return &models.Payload{Summary: summary}, nil
	}}
}

func failingAgent(c models.Capability, err error) capability.Agent {
	return capability.Func{Cap: c, Fn: func(ctx context.Context, text string, rc models.RunContext) (*models.Payload, error) {
		return nil, err
	}}
}

// blockingAgent waits for its context to end.
func blockingAgent(c models.Capability) capability.Agent {
	return capability.Func{Cap: c, Fn: func(ctx context.Context, text string, rc models.RunContext) (*models.Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

// stubbornAgent ignores its context and returns only when release is closed.
func stubbornAgent(c models.Capability, release <-chan struct{}) capability.Agent {
	return capability.Func{Cap: c, Fn: func(ctx context.Context, text string, rc models.RunContext) (*models.Payload, error) {
		<-release
		return &models.Payload{Summary: "late"}, nil
	}}
}

func allOK() *capability.Registry {
	return capability.NewRegistry(
		okAgent(models.CapabilityCAPA, "Found 3 open CAPAs in the last year."),
		okAgent(models.CapabilityGraph, "Found 2 investigations for brand X."),
		okAgent(models.CapabilityVector, "Clinical trial summary for brand X from 1 documents:"),
	)
}

func fixedCompleter(out string) llm.Completer {
	return llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return out, nil
	})
}

// fakeNotifier is a notifier.Notifier that counts sends.
type fakeNotifier struct {
	name string
	err  error

	mu     sync.Mutex
	calls  int
	bodies []string
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Send(ctx context.Context, recipient, subject, body string) (*models.DeliveryReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.bodies = append(f.bodies, body)
	if f.err != nil {
		return nil, f.err
	}
	return &models.DeliveryReceipt{MessageID: f.name + "-1", Transport: f.name, Recipient: recipient, SentAt: time.Now()}, nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeNotifier) lastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return ""
	}
	return f.bodies[len(f.bodies)-1]
}

// panickyDecomposer panics on Decompose.
type panickyDecomposer struct{}

func (panickyDecomposer) Decompose(ctx context.Context, q models.Query) ([]models.SubQuestion, error) {
	panic("decomposer exploded")
}

func (panickyDecomposer) Template(q models.Query) ([]models.SubQuestion, error) {
	return nil, errors.New("unused")
}

// brokenDecomposer fails both the reasoning step and the template.
type brokenDecomposer struct{}

func (brokenDecomposer) Decompose(ctx context.Context, q models.Query) ([]models.SubQuestion, error) {
	return nil, &DecompositionError{Reason: "reasoning down"}
}

func (brokenDecomposer) Template(q models.Query) ([]models.SubQuestion, error) {
	return nil, errors.New("template unavailable")
}

type harness struct {
	ctrl    *Controller
	primary *fakeNotifier
}

type harnessConfig struct {
	registry        *capability.Registry
	decomposer      QueryDecomposer
	agentTimeout    time.Duration
	approvalTimeout time.Duration
	primaryErr      error
	opts            []Option
}

func newHarness(t *testing.T, hc harnessConfig) *harness {
	t.Helper()
	if hc.registry == nil {
		hc.registry = allOK()
	}
	if hc.decomposer == nil {
		hc.decomposer = NewDecomposer(fixedCompleter(validDecomposition), models.DefaultCapabilities())
	}
	if hc.agentTimeout == 0 {
		hc.agentTimeout = time.Second
	}
	if hc.approvalTimeout == 0 {
		hc.approvalTimeout = time.Hour
	}

	primary := &fakeNotifier{name: "primary", err: hc.primaryErr}
	ctrl := NewController(
		Settings{ApprovalTimeout: hc.approvalTimeout},
		hc.decomposer,
		NewDispatcher(hc.registry, hc.agentTimeout),
		NewNotifierDispatch(primary, nil, nil),
		hc.opts...,
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
		defer cancel()
		ctrl.Shutdown(ctx)
	})
	return &harness{ctrl: ctrl, primary: primary}
}

func (h *harness) submit(t *testing.T, text string) string {
	t.Helper()
	id, err := h.ctrl.SubmitQuery(text)
	if err != nil {
		t.Fatalf("SubmitQuery failed: %v", err)
	}
	return id
}

func (h *harness) waitParked(t *testing.T, id string) *models.RunState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()
	s, err := h.ctrl.WaitParked(ctx, id)
	if err != nil {
		t.Fatalf("run %s did not park: %v", id, err)
	}
	return s
}

func (h *harness) waitTerminated(t *testing.T, id string) *models.RunState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()
	s, err := h.ctrl.WaitTerminated(ctx, id)
	if err != nil {
		t.Fatalf("run %s did not terminate: %v", id, err)
	}
	return s
}
