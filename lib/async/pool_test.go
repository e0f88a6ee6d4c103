package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coachpo/swapflow/errs"
)

func TestPoolRunsTasks(t *testing.T) {
	pool, err := NewPool("test", 2, 8)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if err := pool.Submit(context.Background(), func(context.Context) error {
			ran.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := ran.Load(); got != 5 {
		t.Fatalf("ran = %d, want 5", got)
	}
}

func TestPoolRejectsWhenSaturated(t *testing.T) {
	pool, err := NewPool("test", 1, 0)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	if err := pool.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-block
		return nil
	}); err != nil {
		t.Fatalf("submit blocker: %v", err)
	}
	<-started

	err = pool.Submit(context.Background(), func(context.Context) error { return nil })
	if errs.CodeOf(err) != errs.CodeUnavailable {
		t.Fatalf("err = %v, want unavailable", err)
	}
	close(block)
}

// The journal sink depends on a single-worker pool draining FIFO: an
// execution's accepted insert must land before its settle or revert update.
func TestPoolSingleWorkerRunsInSubmitOrder(t *testing.T) {
	pool, err := NewPool("test", 1, 16)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	gate := make(chan struct{})
	if err := pool.Submit(context.Background(), func(context.Context) error {
		<-gate // hold the worker so every later submit queues behind it
		return nil
	}); err != nil {
		t.Fatalf("submit gate: %v", err)
	}

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		seq := i
		if err := pool.Submit(context.Background(), func(context.Context) error {
			mu.Lock()
			order = append(order, seq)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("submit %d: %v", seq, err)
		}
	}
	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	for i, seq := range order {
		if seq != i {
			t.Fatalf("order = %v, want tasks in submit order", order)
		}
	}
	if len(order) != 10 {
		t.Fatalf("ran %d tasks, want 10", len(order))
	}
}

func TestPoolClosedRejectsSubmit(t *testing.T) {
	pool, err := NewPool("test", 1, 1)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	pool.Close()
	err = pool.Submit(context.Background(), func(context.Context) error { return nil })
	if errs.CodeOf(err) != errs.CodeUnavailable {
		t.Fatalf("err = %v, want unavailable", err)
	}
}

func TestPoolSurvivesPanickingTask(t *testing.T) {
	pool, err := NewPool("test", 1, 4)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if err := pool.Submit(context.Background(), func(context.Context) error { panic("boom") }); err != nil {
		t.Fatalf("submit panicker: %v", err)
	}
	var ran atomic.Bool
	if err := pool.Submit(context.Background(), func(context.Context) error {
		ran.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("submit follower: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !ran.Load() {
		t.Fatal("worker died after panic")
	}
}

func TestNewPoolValidation(t *testing.T) {
	if _, err := NewPool("test", 0, 1); errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("err = %v, want invalid", err)
	}
}
