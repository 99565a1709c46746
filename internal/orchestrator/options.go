package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/config"
)

// Defaults applied when neither Settings nor options provide a value.
const (
	DefaultApprovalTimeout = 24 * time.Hour
	DefaultEventBuffer     = 100
	DefaultRecipient       = "analyst@company.com"
)

// Settings is the immutable configuration of a Controller.
type Settings struct {
	// ApprovalTimeout bounds how long a run waits at the approval gate.
	ApprovalTimeout time.Duration
}

// SettingsFromConfig copies the controller settings out of the loaded configuration.
func SettingsFromConfig(cfg config.OrchestratorConfig) Settings {
	return Settings{ApprovalTimeout: cfg.ApprovalTimeout}
}

// Option configures a Controller. Use With* functions to create Options.
type Option func(*controllerOptions)

// controllerOptions holds all optional configuration.
type controllerOptions struct {
	logger      *zap.Logger
	store       RunStore
	now         func() time.Time
	summarizer  Summarizer
	eventBuffer int
	recipient   string
}

func defaultControllerOptions() controllerOptions {
	return controllerOptions{
		logger:      zap.NewNop(),
		now:         time.Now,
		eventBuffer: DefaultEventBuffer,
		recipient:   DefaultRecipient,
	}
}

// WithLogger sets the controller's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *controllerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStore persists runs and pending approvals. Without a store runs live
// only in memory.
func WithStore(s RunStore) Option {
	return func(o *controllerOptions) { o.store = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *controllerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSummarizer enables the narrative executive summary.
func WithSummarizer(s Summarizer) Option {
	return func(o *controllerOptions) { o.summarizer = s }
}

// WithEventBuffer sets the size of the events channel.
func WithEventBuffer(n int) Option {
	return func(o *controllerOptions) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

// WithRecipient sets the address notifications are sent to.
func WithRecipient(addr string) Option {
	return func(o *controllerOptions) {
		if addr != "" {
			o.recipient = addr
		}
	}
}
