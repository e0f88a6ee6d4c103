// Package engine implements the route execution engine: a deterministic,
// persisted state machine that drives a validated swap route stage by stage
// through externally dispatched venue calls, resumes from continuations, and
// enforces the all-or-nothing payout invariant.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/asset"
	"github.com/coachpo/swapflow/internal/observability"
	"github.com/coachpo/swapflow/internal/route"
	"github.com/coachpo/swapflow/internal/store"
	"github.com/coachpo/swapflow/internal/venue"
)

// ReplyOrder selects which of n pending calls completes next. The default pops
// the most recently dispatched call, matching call-stack reply order. Tests
// inject permutations to assert order-independence of final balances.
type ReplyOrder func(n int) int

func lifoOrder(n int) int { return n - 1 }

// Event describes a lifecycle transition of one execution.
type Event struct {
	ExecutionID uuid.UUID    `json:"execution_id"`
	Type        string       `json:"type"`
	Initiator   string       `json:"initiator,omitempty"`
	Stage       int          `json:"stage"`
	Amount      asset.Amount `json:"amount,omitempty"`
	Detail      string       `json:"detail,omitempty"`
}

// Event types emitted over the lifetime of an execution.
const (
	EventAccepted     = "accepted"
	EventStageSettled = "stage_settled"
	EventConversion   = "conversion"
	EventPaid         = "paid"
	EventReverted     = "reverted"
)

// EventSink receives execution lifecycle events.
type EventSink interface {
	Emit(Event)
}

// Engine coordinates route executions. Each execution runs single-threaded
// inside one atomic store transaction; concurrency across executions is the
// caller's concern.
type Engine struct {
	store      store.Store
	venues     *venue.Registry
	converter  venue.Converter
	bank       venue.Bank
	replyOrder ReplyOrder
	events     EventSink
}

// Option configures an Engine.
type Option func(*Engine)

// WithReplyOrder overrides the pending-call completion order.
func WithReplyOrder(order ReplyOrder) Option {
	return func(e *Engine) {
		if order != nil {
			e.replyOrder = order
		}
	}
}

// WithEvents attaches a lifecycle event sink.
func WithEvents(sink EventSink) Option {
	return func(e *Engine) {
		e.events = sink
	}
}

// New constructs an Engine.
func New(st store.Store, venues *venue.Registry, converter venue.Converter, bank venue.Bank, opts ...Option) *Engine {
	e := new(Engine)
	e.store = st
	e.venues = venues
	e.converter = converter
	e.bank = bank
	e.replyOrder = lifoOrder
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Receipt summarises a settled execution.
type Receipt struct {
	ExecutionID uuid.UUID    `json:"execution_id"`
	Paid        asset.Amount `json:"paid"`
	Stages      int          `json:"stages"`
	Hops        int          `json:"hops"`
	Conversions int          `json:"conversions"`
}

// Execute validates the route, takes custody of the offered amount, and runs
// the route to completion. On any failure after custody the offered funds are
// restored to the initiator unchanged and all execution state is discarded.
func (e *Engine) Execute(ctx context.Context, initiator string, offer asset.Amount, r route.Route) (Receipt, error) {
	if initiator == "" {
		return Receipt{}, errs.New("engine/execute", errs.CodeInvalid, errs.WithMessage("initiator required"))
	}
	// Validation precedes custody: a malformed route is the cheapest failure.
	if err := route.Validate(r, offer, e.converter); err != nil {
		return Receipt{}, err
	}
	if err := e.bank.Custody(ctx, initiator, offer); err != nil {
		return Receipt{}, fmt.Errorf("take custody: %w", err)
	}

	receipt, err := e.run(ctx, initiator, offer, r)
	if err != nil {
		if refundErr := e.bank.Refund(ctx, initiator, offer); refundErr != nil {
			return Receipt{}, errors.Join(err, fmt.Errorf("refund custody: %w", refundErr))
		}
		return Receipt{}, err
	}
	return receipt, nil
}

func (e *Engine) run(ctx context.Context, initiator string, offer asset.Amount, r route.Route) (Receipt, error) {
	exec := &execution{
		engine:    e,
		ctx:       ctx,
		initiator: initiator,
		offer:     offer,
		route:     r,
	}
	started := time.Now()
	err := e.store.Update(ctx, func(kv store.KV) error {
		exec.kv = kv
		return exec.run()
	})
	observability.Telemetry().ObserveHistogram("swapflow_execution_duration_ms",
		float64(time.Since(started).Milliseconds()), nil)
	if err != nil {
		e.emit(Event{ExecutionID: exec.id, Type: EventReverted, Stage: exec.stageIndex(), Detail: err.Error()})
		observability.Log().Error("route execution reverted",
			observability.Field{Key: "execution_id", Value: exec.id.String()},
			observability.Field{Key: "error", Value: err.Error()})
		observability.Telemetry().IncCounter("swapflow_executions_total", 1, map[string]string{"outcome": "reverted"})
		return Receipt{}, err
	}
	observability.Telemetry().IncCounter("swapflow_executions_total", 1, map[string]string{"outcome": "settled"})
	return exec.receipt, nil
}

// Inspect returns a read-only snapshot of an in-flight execution context. It
// never mutates state.
func (e *Engine) Inspect(ctx context.Context, id uuid.UUID) (*Context, error) {
	var snapshot *Context
	err := e.store.View(ctx, func(kv store.KV) error {
		ectx, loadErr := loadContext(kv, id)
		if loadErr != nil {
			return loadErr
		}
		snapshot = ectx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (e *Engine) emit(event Event) {
	if e.events == nil {
		return
	}
	e.events.Emit(event)
}
