package engine

import (
	"fmt"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/observability"
)

// payout collapses the normalized balances into the single final amount,
// enforces the minimum receive guard, transfers to the initiator, and clears
// the persisted execution record. Reached only after every stage settled and
// final normalization completed.
func (x *execution) payout() error {
	x.ectx.Phase = PhasePaying
	held, err := x.ectx.TotalBalance()
	if err != nil {
		return err
	}
	if held.Quantity == 0 {
		x.ectx.Phase = PhaseReverted
		return errs.New("engine/payout", errs.CodePayout,
			errs.WithMessage("route produced no output"))
	}
	if min := x.ectx.Route.MinimumReceive; min != nil && held.Quantity < *min {
		x.ectx.Phase = PhaseReverted
		return errs.New("engine/payout", errs.CodePayout,
			errs.WithMessage(fmt.Sprintf("produced %d %s, below minimum receive %d", held.Quantity, held.Asset, *min)))
	}
	if err := x.engine.bank.Transfer(x.ctx, x.ectx.Initiator, held); err != nil {
		return fmt.Errorf("payout transfer: %w", err)
	}
	deleteContext(x.kv, x.ectx.ID)
	x.ectx.Phase = PhaseSettled
	x.receipt = Receipt{
		ExecutionID: x.ectx.ID,
		Paid:        held,
		Stages:      len(x.ectx.Route.Stages),
		Hops:        x.hops,
		Conversions: x.conversions,
	}
	x.engine.emit(Event{ExecutionID: x.ectx.ID, Type: EventPaid, Stage: x.ectx.StageIndex, Amount: held})
	observability.Log().Info("route settled",
		observability.Field{Key: "execution_id", Value: x.ectx.ID.String()},
		observability.Field{Key: "paid", Value: held.String()},
		observability.Field{Key: "hops", Value: x.hops},
		observability.Field{Key: "conversions", Value: x.conversions})
	observability.Telemetry().IncCounter("swapflow_payouts_total", 1, map[string]string{"asset": held.Asset.String()})
	return nil
}
