// Package async provides bounded worker pool utilities.
package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/observability"
)

// Task represents a unit of work executed by the pool workers.
type Task func(context.Context) error

// Pool is a bounded worker pool enforcing backpressure when saturated. Task
// errors and panics are logged and swallowed so one bad task cannot take a
// worker down.
type Pool struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan task
	wg     sync.WaitGroup
	once   sync.Once

	mu     sync.RWMutex
	closed bool
}

type task struct {
	ctx context.Context
	fn  Task
}

// NewPool creates a worker pool with the given concurrency and queue depth.
func NewPool(name string, workers, queue int) (*Pool, error) {
	if workers <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := new(Pool)
	p.name = name
	p.ctx = ctx
	p.cancel = cancel
	p.tasks = make(chan task, queue)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p, nil
}

// Submit schedules the task, failing fast when the pool is closed or its
// queue is full. The read lock serializes the enqueue against Close so a
// submit can never hit a closed queue.
func (p *Pool) Submit(ctx context.Context, fn Task) error {
	if fn == nil {
		return errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submit context: %w", err)
	}
	p.wg.Add(1)
	select {
	case p.tasks <- task{ctx: ctx, fn: fn}:
		observability.Telemetry().SetGauge("swapflow_pool_queue_depth", float64(len(p.tasks)),
			map[string]string{"pool": p.name})
		return nil
	default:
		p.wg.Done()
		observability.Telemetry().IncCounter("swapflow_pool_rejected_total", 1,
			map[string]string{"pool": p.name})
		observability.Log().Warn("pool at capacity, task rejected",
			observability.Field{Key: "pool", Value: p.name},
			observability.Field{Key: "queue", Value: cap(p.tasks)})
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool at capacity"))
	}
}

// Close stops accepting new tasks; already-queued work still drains.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.cancel()
		close(p.tasks)
		p.mu.Unlock()
	})
}

// Shutdown waits for in-flight tasks to complete or until the context expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

// worker drains the queue until it is closed and empty. Draining after Close
// keeps the wait-group accounting exact: every queued task either runs or was
// never admitted.
func (p *Pool) worker() {
	for next := range p.tasks {
		ctx := next.ctx
		if ctx == nil {
			ctx = p.ctx
		}
		p.runTask(ctx, next.fn)
		p.wg.Done()
	}
}

func (p *Pool) runTask(ctx context.Context, fn Task) {
	defer func() {
		if r := recover(); r != nil {
			observability.Log().Error("pool task panic",
				observability.Field{Key: "pool", Value: p.name},
				observability.Field{Key: "panic", Value: fmt.Sprint(r)})
		}
	}()
	if err := fn(ctx); err != nil {
		observability.Log().Error("pool task failed",
			observability.Field{Key: "pool", Value: p.name},
			observability.Field{Key: "error", Value: err.Error()})
	}
}
