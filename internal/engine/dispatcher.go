package engine

import (
	"github.com/google/uuid"

	"github.com/coachpo/swapflow/internal/asset"
	"github.com/coachpo/swapflow/internal/observability"
	"github.com/coachpo/swapflow/internal/route"
	"github.com/coachpo/swapflow/internal/venue"
)

// call is one dispatched external operation awaiting completion. Exactly one
// of swap or conv is set; cont is persisted before the call is enqueued so a
// crash between dispatch and resolution leaves a recoverable record.
type call struct {
	cont Continuation
	swap *venue.SwapRequest
	conv *conversionRequest
}

type conversionRequest struct {
	From asset.Amount
	To   asset.Info
}

func (x *execution) dispatchHop(splitIdx int, op route.Operation, offer asset.Amount) error {
	cont := Continuation{ID: uuid.New(), ExecutionID: x.id, SplitIndex: splitIdx, Kind: KindPathHop}
	if err := saveContinuation(x.kv, cont); err != nil {
		return err
	}
	x.pending = append(x.pending, call{
		cont: cont,
		swap: &venue.SwapRequest{Kind: op.Kind, Venue: op.Venue, Offer: offer, Ask: op.Ask},
	})
	observability.Telemetry().IncCounter("swapflow_hops_dispatched_total", 1, map[string]string{"venue": op.Venue})
	return nil
}

func (x *execution) queueConversion(kind ContinuationKind, splitIdx int, from asset.Amount, to asset.Info) error {
	cont := Continuation{ID: uuid.New(), ExecutionID: x.id, SplitIndex: splitIdx, Kind: kind}
	if err := saveContinuation(x.kv, cont); err != nil {
		return err
	}
	x.pending = append(x.pending, call{cont: cont, conv: &conversionRequest{From: from, To: to}})
	return nil
}

// perform executes the external side of a pending call. Failures surface as
// failed outcomes rather than errors so the resolver applies the same
// full-route abort path regardless of where the call broke.
func (x *execution) perform(c call) venue.Outcome {
	if c.swap != nil {
		v, err := x.engine.venues.Resolve(c.swap.Venue)
		if err != nil {
			return venue.Fail(err.Error())
		}
		return v.Swap(x.ctx, *c.swap)
	}
	return x.engine.converter.Convert(x.ctx, c.conv.From, c.conv.To)
}
