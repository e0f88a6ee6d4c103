package engine

import (
	"fmt"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/asset"
)

// planNormalization queues a conversion for every held balance whose asset is
// not among the accepted set, keeping matching balances in place. It returns
// the number of conversions queued; zero means the balances were already
// normalized and the caller can proceed directly.
func (x *execution) planNormalization(accepted []asset.Info, kind ContinuationKind) (int, error) {
	kept := x.ectx.Balances[:0]
	queued := 0
	for _, held := range x.ectx.Balances {
		if containsAsset(accepted, held.Asset) {
			kept = append(kept, held)
			continue
		}
		target, ok := x.engine.converter.Target(held.Asset, accepted)
		if !ok {
			return 0, errs.New("engine/normalize", errs.CodeNormalization,
				errs.WithMessage(fmt.Sprintf("no conversion from %s to any accepted asset", held.Asset)))
		}
		if err := x.queueConversion(kind, -1, held, target); err != nil {
			return 0, err
		}
		queued++
	}
	x.ectx.Balances = kept
	return queued, nil
}

// resolveNormalization folds one converted balance back in. Progress only
// continues once every sibling conversion of the same kind has been consumed,
// which the outstanding continuation count tells us directly.
func (x *execution) resolveNormalization(cont Continuation, produced asset.Amount) error {
	if err := x.ectx.MergeBalance(produced); err != nil {
		return err
	}
	x.engine.emit(Event{ExecutionID: x.ectx.ID, Type: EventConversion, Stage: x.ectx.StageIndex, Amount: produced})
	if err := saveContext(x.kv, x.ectx); err != nil {
		return err
	}
	if countContinuations(x.kv, x.ectx.ID, cont.Kind) > 0 {
		return nil
	}
	if cont.Kind == KindStageNormalization {
		return x.dispatchStage(x.ectx.StageIndex + 1)
	}
	return x.payout()
}

func containsAsset(set []asset.Info, a asset.Info) bool {
	for _, candidate := range set {
		if candidate == a {
			return true
		}
	}
	return false
}
