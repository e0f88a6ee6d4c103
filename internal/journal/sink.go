package journal

import (
	"context"
	"time"

	"github.com/coachpo/swapflow/internal/engine"
	"github.com/coachpo/swapflow/lib/async"
)

// Sink journals engine events off the execution path: writes are handed to a
// bounded worker pool so a slow database never stalls a route. Events that
// cannot be queued are dropped from the journal (the engine state itself is
// unaffected) and surface in the pool's rejection metric.
type Sink struct {
	recorder *Recorder
	pool     *async.Pool
	next     engine.EventSink
	timeout  time.Duration
}

var _ engine.EventSink = (*Sink)(nil)

// NewSink builds a Sink writing through recorder. The pool must run a single
// worker: an execution's accepted insert has to commit before its terminal
// settle or revert update, and only FIFO draining guarantees that. next, when
// non-nil, receives every event after the journal write is queued (used to
// chain the live event bus behind the journal).
func NewSink(recorder *Recorder, pool *async.Pool, next engine.EventSink) *Sink {
	s := new(Sink)
	s.recorder = recorder
	s.pool = pool
	s.next = next
	s.timeout = 5 * time.Second
	return s
}

// Emit queues the journal write and forwards the event.
func (s *Sink) Emit(event engine.Event) {
	_ = s.pool.Submit(context.Background(), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.recorder.Apply(ctx, event)
	})
	if s.next != nil {
		s.next.Emit(event)
	}
}
