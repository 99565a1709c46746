package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// emitWait bounds how long a publisher blocks on a full buffer.
const emitWait = 100 * time.Millisecond

// dropLogEvery throttles the "dropped event" warning.
const dropLogEvery = 10

// EventEmitter fans controller events out to a single buffered channel.
// Publishers never block for longer than emitWait; anything that cannot be
// queued in that time is counted and discarded.
type EventEmitter struct {
	ch      chan Event
	dropped atomic.Uint64
	log     *zap.Logger

	mu       sync.RWMutex
	shutdown bool
}

// NewEventEmitter returns an emitter whose channel holds bufferSize events.
func NewEventEmitter(bufferSize int, logger *zap.Logger) *EventEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventEmitter{
		ch:  make(chan Event, max(bufferSize, 0)),
		log: logger,
	}
}

// Emit queues ev. It is a no-op once Close has been called.
func (e *EventEmitter) Emit(ev Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.shutdown {
		return
	}
	if e.tryQueue(ev) {
		return
	}

	timer := time.NewTimer(emitWait)
	defer timer.Stop()
	select {
	case e.ch <- ev:
	case <-timer.C:
		e.recordDrop(ev)
	}
}

func (e *EventEmitter) tryQueue(ev Event) bool {
	select {
	case e.ch <- ev:
		return true
	default:
		return false
	}
}

func (e *EventEmitter) recordDrop(ev Event) {
	n := e.dropped.Add(1)
	if n%dropLogEvery != 1 {
		return
	}
	e.log.Warn("event buffer full, discarding",
		zap.Uint64("dropped_total", n),
		zap.String("type", string(ev.Type)),
		zap.String("run_id", ev.RunID))
}

// DroppedCount reports how many events were discarded so far.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.dropped.Load()
}

// Events is the consumer side of the emitter.
func (e *EventEmitter) Events() <-chan Event {
	return e.ch
}

// Close ends the stream. Later calls do nothing.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.shutdown {
		e.shutdown = true
		close(e.ch)
	}
}
