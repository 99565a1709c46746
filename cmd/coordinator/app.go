package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/capability"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/config"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/llm"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/logging"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/notifier"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/orchestrator"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/state"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// shutdownTimeout bounds how long in-flight phases get to finish on exit.
const shutdownTimeout = 15 * time.Second

// app wires configuration, storage, agents and the controller for one
// command invocation.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *state.DB
	ctrl      *orchestrator.Controller
	completer llm.Completer
	cleanup   func()
}

// appOptions adjusts how newApp builds the controller.
type appOptions struct {
	// onResult is called for every agent result as it is recorded.
	onResult func(runID string, r models.AgentResult)
}

// newApp builds a controller from cfg. The caller must call close.
func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	logger, cleanup, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	fail := func(err error) (*app, error) {
		cleanup()
		return nil, err
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return fail(err)
	}
	for _, w := range warnings {
		logger.Warn("config warning", zap.String("detail", w))
	}

	completer, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		logger.Warn("reasoning step unavailable, using template decomposition", zap.Error(err))
		completer = nil
	}

	registry, src, err := capability.FromConfig(cfg, completer, logger)
	if err != nil {
		return fail(fmt.Errorf("build agents: %w", err))
	}
	logger.Info("agents ready",
		zap.String("capa", src.CAPA),
		zap.String("graph", src.Graph),
		zap.String("vector", src.Vector))

	if err := os.MkdirAll(filepath.Dir(cfg.State.DBPath), 0755); err != nil {
		return fail(fmt.Errorf("create state directory: %w", err))
	}
	db, err := state.OpenAndMigrate(cfg.State.DBPath)
	if err != nil {
		return fail(fmt.Errorf("open state: %w", err))
	}

	primary, fallback := notifier.FromConfig(cfg, notifier.WithLogger(logger.Named("notifier")))

	dispatcherOpts := []orchestrator.DispatcherOption{orchestrator.WithDispatcherLogger(logger.Named("dispatcher"))}
	if opts.onResult != nil {
		dispatcherOpts = append(dispatcherOpts, orchestrator.WithResultHook(opts.onResult))
	}

	ctrlOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger.Named("controller")),
		orchestrator.WithStore(db),
		orchestrator.WithEventBuffer(cfg.Orchestrator.EventBuffer),
		orchestrator.WithRecipient(cfg.Email.DefaultRecipient),
	}
	if cfg.LLM.Summarize && completer != nil {
		ctrlOpts = append(ctrlOpts, orchestrator.WithSummarizer(orchestrator.NewLLMSummarizer(completer, cfg.LLM.Temperature)))
	}

	ctrl := orchestrator.NewController(
		orchestrator.SettingsFromConfig(cfg.Orchestrator),
		orchestrator.NewDecomposer(completer, cfg.Orchestrator.Capabilities,
			orchestrator.WithTemperature(cfg.LLM.Temperature),
			orchestrator.WithDefaultBrand(cfg.Graph.DefaultBrand),
			orchestrator.WithDecomposerLogger(logger.Named("decomposer"))),
		orchestrator.NewDispatcher(registry, cfg.Orchestrator.AgentTimeout, dispatcherOpts...),
		orchestrator.NewNotifierDispatch(primary, fallback, logger.Named("notifier")),
		ctrlOpts...,
	)

	return &app{cfg: cfg, logger: logger, db: db, ctrl: ctrl, completer: completer, cleanup: cleanup}, nil
}

// close shuts the controller down and releases storage and log files.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.ctrl.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown incomplete", zap.Error(err))
	}
	if usage, ok := llm.UsageOf(a.completer); ok && usage.Calls() > 0 {
		in, out := usage.Total()
		a.logger.Info("llm usage", zap.Int("calls", usage.Calls()), zap.Int64("input_tokens", in), zap.Int64("output_tokens", out))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close state", zap.Error(err))
	}
	a.cleanup()
}

// openState opens the run database named by cfg for read-mostly commands.
func openState(cfg *config.Config) (*state.DB, error) {
	if _, err := os.Stat(cfg.State.DBPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no run database at %s; run 'coordinator run' or 'coordinator serve' first", cfg.State.DBPath)
	}
	db, err := state.OpenAndMigrate(cfg.State.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	return db, nil
}
