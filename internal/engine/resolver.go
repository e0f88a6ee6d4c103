package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/asset"
	"github.com/coachpo/swapflow/internal/observability"
	"github.com/coachpo/swapflow/internal/venue"
)

// resolve consumes the continuation recorded for a completed call and routes
// its outcome to the matching handler. The execution context is reloaded from
// storage on every resume; resolution never trusts in-memory leftovers from
// the dispatch that suspended.
func (x *execution) resolve(contID uuid.UUID, outcome venue.Outcome) error {
	cont, err := takeContinuation(x.kv, contID)
	if err != nil {
		return err
	}
	ectx, err := loadContext(x.kv, cont.ExecutionID)
	if err != nil {
		return err
	}
	x.ectx = ectx

	if outcome.Failed() {
		return x.abort(cont, outcome.Failure)
	}

	switch cont.Kind {
	case KindPathHop:
		x.hops++
		return x.advanceSplit(cont.SplitIndex, outcome.Produced)
	case KindMidPathConversion:
		x.conversions++
		x.engine.emit(Event{ExecutionID: x.ectx.ID, Type: EventConversion, Stage: x.ectx.StageIndex, Amount: outcome.Produced})
		return x.advanceSplit(cont.SplitIndex, outcome.Produced)
	case KindStageNormalization, KindFinalNormalization:
		x.conversions++
		return x.resolveNormalization(cont, outcome.Produced)
	default:
		return errs.New("engine/resolver", errs.CodeConflict,
			errs.WithMessage(fmt.Sprintf("unknown continuation kind %q", cont.Kind)))
	}
}

// abort marks the execution reverted and returns a fatal error, which unwinds
// the store transaction and triggers the custody refund in Execute.
func (x *execution) abort(cont Continuation, reason string) error {
	if cont.SplitIndex >= 0 && cont.SplitIndex < len(x.ectx.Splits) {
		x.ectx.Splits[cont.SplitIndex].Status = SplitFailed
	}
	x.ectx.Phase = PhaseReverted
	code := errs.CodeVenue
	if cont.Kind != KindPathHop {
		code = errs.CodeNormalization
	}
	observability.Log().Error("execution aborted",
		observability.Field{Key: "execution_id", Value: x.ectx.ID.String()},
		observability.Field{Key: "stage", Value: x.ectx.StageIndex},
		observability.Field{Key: "reason", Value: reason})
	return errs.New("engine/resolver", code, errs.WithMessage(reason))
}

// advanceSplit carries a produced amount along its split path: dispatch the
// next hop, insert a mid-path conversion when assets disagree, or settle the
// split and fold its output into the stage balances.
func (x *execution) advanceSplit(splitIdx int, produced asset.Amount) error {
	path := x.ectx.Route.Stages[x.ectx.StageIndex].Splits[splitIdx].Path
	state := &x.ectx.Splits[splitIdx]
	next := state.PathCursor + 1

	if next < len(path) {
		nextOp := path[next]
		if produced.Asset != nextOp.Offer {
			if state.Status == SplitAwaitingConversion {
				return errs.New("engine/resolver", errs.CodeNormalization,
					errs.WithMessage(fmt.Sprintf("conversion produced %s, hop expects %s", produced.Asset, nextOp.Offer)))
			}
			state.Status = SplitAwaitingConversion
			state.Carried = produced
			if err := x.queueConversion(KindMidPathConversion, splitIdx, produced, nextOp.Offer); err != nil {
				return err
			}
			return saveContext(x.kv, x.ectx)
		}
		state.Status = SplitPending
		state.PathCursor = next
		state.Carried = produced
		if err := x.dispatchHop(splitIdx, nextOp, produced); err != nil {
			return err
		}
		return saveContext(x.kv, x.ectx)
	}

	state.Status = SplitSettled
	state.Carried = produced
	if err := x.ectx.MergeBalance(produced); err != nil {
		return err
	}
	if err := saveContext(x.kv, x.ectx); err != nil {
		return err
	}
	if x.ectx.StagePending() {
		return nil
	}
	return x.advanceStage()
}
