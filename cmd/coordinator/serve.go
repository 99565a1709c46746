package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/signals"
)

var serveQuiet bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator as a long-lived process",
	Long: `Serve recovers runs left by a previous process, then watches the signals
directory for queries, approval decisions and cancellations written by
'submit', 'approve', 'reject', 'edit' and 'cancel'.

Stop it with Ctrl+C. Runs waiting for approval are kept and picked up by
the next serve.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVarP(&serveQuiet, "quiet", "q", false, "Do not print events")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := newApp(cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	go drainEvents(a.ctrl.Events(), !serveQuiet, out)

	if err := a.ctrl.Recover(ctx); err != nil {
		a.logger.Warn("recovery incomplete", zap.Error(err))
		printStatus(cmd.ErrOrStderr(), "⚠", "some runs could not be recovered: "+err.Error(), color.FgYellow)
	}

	w := signals.NewWatcher(cfg.Signals.Dir, a.ctrl,
		signals.WithLogger(a.logger.Named("signals")),
		signals.WithAppliedHook(func(sig signals.Signal, err error) {
			if err != nil && !serveQuiet {
				printStatus(cmd.ErrOrStderr(), "✗", fmt.Sprintf("%s for %s: %v", sig.Kind, shortID(sig.RunID), err), color.FgRed)
			}
		}))
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("watch signals: %w", err)
	}
	defer w.Close()

	printStatus(out, "✓", "coordinator serving, signals in "+w.Dir(), color.FgGreen)
	<-ctx.Done()
	printStatus(out, "→", "shutting down", color.FgCyan)
	return nil
}

