package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/asset"
	"github.com/coachpo/swapflow/internal/observability"
	"github.com/coachpo/swapflow/internal/route"
	"github.com/coachpo/swapflow/internal/store"
)

// execution carries the working state of one route execution inside its store
// transaction. The persisted Context is authoritative; the pending slice holds
// dispatched calls whose outcomes have not yet been consumed.
type execution struct {
	engine    *Engine
	ctx       context.Context
	kv        store.KV
	initiator string
	offer     asset.Amount
	route     route.Route

	id          uuid.UUID
	ectx        *Context
	pending     []call
	hops        int
	conversions int
	receipt     Receipt
}

func (x *execution) run() error {
	x.id = uuid.New()
	x.ectx = &Context{
		ID:         x.id,
		Initiator:  x.initiator,
		Route:      x.route,
		Phase:      PhaseNormalizing,
		StageIndex: -1,
		Balances:   []asset.Amount{x.offer},
		Custody:    x.offer,
	}
	if err := saveContext(x.kv, x.ectx); err != nil {
		return err
	}
	x.engine.emit(Event{ExecutionID: x.id, Type: EventAccepted, Initiator: x.initiator, Stage: 0, Amount: x.offer})

	// Entry normalization aligns the custodied asset with the first stage's
	// accepted inputs; it is a no-op when representations already match.
	queued, err := x.planNormalization(x.route.Stages[0].InputAssets(), KindStageNormalization)
	if err != nil {
		return err
	}
	if queued == 0 {
		if err := x.dispatchStage(0); err != nil {
			return err
		}
	} else if err := saveContext(x.kv, x.ectx); err != nil {
		return err
	}

	// Reply loop: dispatched calls complete one at a time in the configured
	// order; each completion resumes the resolver with its continuation.
	for len(x.pending) > 0 {
		if err := x.ctx.Err(); err != nil {
			return fmt.Errorf("execution context: %w", err)
		}
		idx := x.engine.replyOrder(len(x.pending))
		if idx < 0 || idx >= len(x.pending) {
			idx = len(x.pending) - 1
		}
		next := x.pending[idx]
		x.pending = append(x.pending[:idx], x.pending[idx+1:]...)
		outcome := x.perform(next)
		if err := x.resolve(next.cont.ID, outcome); err != nil {
			return err
		}
	}

	if x.ectx.Phase != PhaseSettled {
		return errs.New("engine/scheduler", errs.CodeConflict,
			errs.WithMessage(fmt.Sprintf("execution stalled in phase %s with no pending calls", x.ectx.Phase)))
	}
	return nil
}

// dispatchStage allocates the stage's input across its splits and issues each
// split's first hop. Allocation groups balances by each path's starting asset;
// within a group, the last split in iteration order absorbs the integer
// division remainder so splitting neither creates nor destroys value.
func (x *execution) dispatchStage(stageIdx int) error {
	stage := x.ectx.Route.Stages[stageIdx]
	x.ectx.Phase = PhaseDispatching
	x.ectx.StageIndex = stageIdx

	totals := make(map[asset.Info]uint64, len(x.ectx.Balances))
	for _, held := range x.ectx.Balances {
		sum, err := asset.CheckedAdd(totals[held.Asset], held.Quantity)
		if err != nil {
			return err
		}
		totals[held.Asset] = sum
	}
	lastFor := make(map[asset.Info]int, len(stage.Splits))
	for i, split := range stage.Splits {
		lastFor[split.Start()] = i
	}

	allocated := make(map[asset.Info]uint64, len(totals))
	x.ectx.Splits = make([]SplitState, len(stage.Splits))
	x.ectx.Balances = nil

	for i, split := range stage.Splits {
		start := split.Start()
		total := totals[start]
		if total == 0 {
			// Nothing was held in the split's starting asset, so it would
			// dispatch a zero-quantity swap. Abort instead of trading nothing.
			return errs.New("engine/scheduler", errs.CodeNormalization,
				errs.WithMessage(fmt.Sprintf("stage %d split %d starts in %s but no balance is held in it", stageIdx, i, start)))
		}
		var quantity uint64
		if lastFor[start] == i {
			quantity = total - allocated[start]
		} else {
			q, err := asset.MulRatio(total, uint64(split.Percent), 100)
			if err != nil {
				return err
			}
			quantity = q
		}
		allocated[start] += quantity
		input := asset.NewAmount(start, quantity)
		x.ectx.Splits[i] = SplitState{Status: SplitPending, PathCursor: 0, Carried: input}
		if err := x.dispatchHop(i, split.Path[0], input); err != nil {
			return err
		}
	}

	x.ectx.Phase = PhaseAwaitingStage
	return saveContext(x.kv, x.ectx)
}

// advanceStage runs after the last split of the current stage settles: it
// normalizes accumulated balances toward the next stage's inputs, or toward
// the payout asset when the settled stage was the last one.
func (x *execution) advanceStage() error {
	x.engine.emit(Event{ExecutionID: x.ectx.ID, Type: EventStageSettled, Stage: x.ectx.StageIndex})
	observability.Log().Debug("stage settled",
		observability.Field{Key: "execution_id", Value: x.ectx.ID.String()},
		observability.Field{Key: "stage", Value: x.ectx.StageIndex})

	stages := x.ectx.Route.Stages
	next := x.ectx.StageIndex + 1
	x.ectx.Phase = PhaseNormalizing

	if next < len(stages) {
		queued, err := x.planNormalization(stages[next].InputAssets(), KindStageNormalization)
		if err != nil {
			return err
		}
		if queued == 0 {
			return x.dispatchStage(next)
		}
		return saveContext(x.kv, x.ectx)
	}

	queued, err := x.planNormalization([]asset.Info{x.ectx.Route.FinalAsset()}, KindFinalNormalization)
	if err != nil {
		return err
	}
	if queued == 0 {
		return x.payout()
	}
	return saveContext(x.kv, x.ectx)
}

func (x *execution) stageIndex() int {
	if x.ectx == nil {
		return 0
	}
	return x.ectx.StageIndex
}
