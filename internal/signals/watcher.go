// Package signals carries queries, approval decisions and cancellations
// from short-lived CLI invocations to a running coordinator through files
// in a shared directory.
package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// File suffixes recognised in the signals directory.
const (
	querySuffix    = ".query"
	decisionSuffix = ".decision.json"
	cancelSuffix   = ".cancel"
	tempSuffix     = ".tmp"
)

// Kind identifies the signal carried by a file.
type Kind string

const (
	KindQuery    Kind = "query"
	KindDecision Kind = "decision"
	KindCancel   Kind = "cancel"
)

// Signal is one parsed signal file.
type Signal struct {
	Kind  Kind
	RunID string
	Path  string
}

// Driver is the controller surface signals are applied to.
type Driver interface {
	SubmitQueryWithID(id, text string) error
	SubmitApprovalDecision(id string, d models.ApprovalDecision) error
	CancelRun(id string) error
}

// decisionFile is the JSON body of a <id>.decision.json file.
type decisionFile struct {
	Outcome    models.ApprovalOutcome `json:"outcome"`
	EditedText string                 `json:"edited_text,omitempty"`
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithAppliedHook registers a callback invoked after each signal is applied,
// with the driver's error, if any.
func WithAppliedHook(fn func(Signal, error)) Option {
	return func(w *Watcher) { w.onApplied = fn }
}

// Watcher applies signal files dropped into a directory to a Driver.
// Each file is removed once applied, whether or not the driver accepted it.
type Watcher struct {
	dir       string
	driver    Driver
	logger    *zap.Logger
	onApplied func(Signal, error)

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]bool
	closed   bool
}

// NewWatcher creates a Watcher for dir. Call Start to begin watching.
func NewWatcher(dir string, driver Driver, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		driver:   driver,
		logger:   zap.NewNop(),
		done:     make(chan struct{}),
		inflight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Start creates the directory if needed, applies any signal files already
// present and then watches for new ones until ctx ends or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if w.driver == nil {
		return errors.New("signals: no driver")
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("signals: create %s: %w", w.dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("signals: create watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("signals: watch %s: %w", w.dir, err)
	}
	w.watcher = fw

	w.wg.Add(1)
	go w.loop(ctx)

	w.scan()
	return nil
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.handle(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("signals watcher error", zap.Error(err))
		}
	}
}

// scan applies the files already in the directory, oldest name first.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("signals scan failed", zap.String("dir", w.dir), zap.Error(err))
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		w.handle(filepath.Join(w.dir, name))
	}
}

// handle applies one file. Concurrent events for the same path are
// collapsed so each file is applied once.
func (w *Watcher) handle(path string) {
	sig, ok := Parse(path)
	if !ok {
		return
	}

	w.mu.Lock()
	if w.inflight[path] {
		w.mu.Unlock()
		return
	}
	w.inflight[path] = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.inflight, path)
		w.mu.Unlock()
	}()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err == nil {
		err = w.apply(sig, data)
	}
	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		w.logger.Warn("remove signal file failed", zap.String("path", path), zap.Error(rmErr))
	}

	logger := w.logger.With(zap.String("run_id", sig.RunID), zap.String("signal", string(sig.Kind)))
	if err != nil {
		logger.Warn("signal rejected", zap.Error(err))
	} else {
		logger.Info("signal applied")
	}
	if w.onApplied != nil {
		w.onApplied(sig, err)
	}
}

func (w *Watcher) apply(sig Signal, data []byte) error {
	switch sig.Kind {
	case KindQuery:
		return w.driver.SubmitQueryWithID(sig.RunID, strings.TrimSpace(string(data)))
	case KindDecision:
		var df decisionFile
		if err := json.Unmarshal(data, &df); err != nil {
			return fmt.Errorf("decode decision: %w", err)
		}
		return w.driver.SubmitApprovalDecision(sig.RunID, models.ApprovalDecision{
			Outcome:    df.Outcome,
			EditedText: df.EditedText,
			Reason:     models.ReasonReviewer,
		})
	case KindCancel:
		return w.driver.CancelRun(sig.RunID)
	default:
		return fmt.Errorf("unknown signal kind %q", sig.Kind)
	}
}

// Parse recognises a signal file by name. Temporary files and unknown
// names are not signals.
func Parse(path string) (Signal, bool) {
	base := filepath.Base(path)
	if strings.HasSuffix(base, tempSuffix) || strings.HasPrefix(base, ".") {
		return Signal{}, false
	}

	var kind Kind
	var id string
	switch {
	case strings.HasSuffix(base, decisionSuffix):
		kind, id = KindDecision, strings.TrimSuffix(base, decisionSuffix)
	case strings.HasSuffix(base, querySuffix):
		kind, id = KindQuery, strings.TrimSuffix(base, querySuffix)
	case strings.HasSuffix(base, cancelSuffix):
		kind, id = KindCancel, strings.TrimSuffix(base, cancelSuffix)
	default:
		return Signal{}, false
	}
	if id == "" {
		return Signal{}, false
	}
	return Signal{Kind: kind, RunID: id, Path: path}, true
}
