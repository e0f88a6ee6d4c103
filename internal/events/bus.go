// Package events fans execution lifecycle events out to live subscribers,
// backing the streaming endpoint.
package events

import (
	"context"
	"sync"

	"github.com/coachpo/swapflow/internal/engine"
	"github.com/coachpo/swapflow/internal/observability"
)

// Bus is an in-memory broadcast bus for engine events. It implements
// engine.EventSink; Emit never blocks the engine: a subscriber whose buffer
// is full simply misses the event, counted in the dropped metric.
type Bus struct {
	ctx    context.Context
	cancel context.CancelFunc
	buffer int

	mu       sync.RWMutex
	subs     []*subscriber
	shutdown sync.Once
}

type subscriber struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan engine.Event
	once   sync.Once
}

var _ engine.EventSink = (*Bus)(nil)

// NewBus constructs a bus whose subscriber channels hold buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := new(Bus)
	b.ctx = ctx
	b.cancel = cancel
	b.buffer = buffer
	b.subs = make([]*subscriber, 0)
	return b
}

// Emit broadcasts the event to every live subscriber without blocking. The
// read lock is held across the sends: subscriber channels close only under
// the write lock, so a send can never hit a closed channel.
func (b *Bus) Emit(event engine.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub == nil {
			continue
		}
		select {
		case <-sub.ctx.Done():
		case sub.ch <- event:
		default:
			observability.Telemetry().IncCounter("swapflow_events_dropped_total", 1,
				map[string]string{"type": event.Type})
		}
	}
}

// Subscribe registers a subscriber whose channel closes when ctx ends or the
// bus shuts down.
func (b *Bus) Subscribe(ctx context.Context) <-chan engine.Event {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := new(subscriber)
	sub.ctx = ctx
	sub.cancel = cancel
	sub.ch = make(chan engine.Event, b.buffer)

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go b.reap(sub)
	return sub.ch
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.shutdown.Do(func() {
		b.cancel()
		b.mu.Lock()
		for i, sub := range b.subs {
			if sub != nil {
				sub.close()
			}
			b.subs[i] = nil
		}
		b.subs = nil
		b.mu.Unlock()
	})
}

// reap removes a finished subscriber. Closing its channel happens inside the
// write-locked section, serialized against Emit's sends.
func (b *Bus) reap(sub *subscriber) {
	select {
	case <-sub.ctx.Done():
	case <-b.ctx.Done():
	}
	b.mu.Lock()
	for i, candidate := range b.subs {
		if candidate == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	sub.close()
	b.mu.Unlock()
}

func (s *subscriber) close() {
	s.once.Do(func() {
		s.cancel()
		close(s.ch)
	})
}
