// Package venue defines the engine's external collaborator boundaries: swap
// venues, the asset-representation conversion adapter, and the bank used for
// custody and payout.
package venue

import (
	"context"

	"github.com/coachpo/swapflow/internal/asset"
	"github.com/coachpo/swapflow/internal/route"
)

// SwapRequest asks a venue to trade the offered amount for the ask asset.
type SwapRequest struct {
	Kind  route.OpKind
	Venue string
	Offer asset.Amount
	Ask   asset.Info
}

// Outcome is the terminal result of an external call: either a produced amount
// or a failure reason. Exactly one outcome arrives per issued call.
type Outcome struct {
	Produced asset.Amount
	Failure  string
}

// Failed reports whether the call ended in failure.
func (o Outcome) Failed() bool { return o.Failure != "" }

// Succeed wraps a produced amount in a successful outcome.
func Succeed(produced asset.Amount) Outcome { return Outcome{Produced: produced} }

// Fail wraps a reason in a failed outcome.
func Fail(reason string) Outcome {
	if reason == "" {
		reason = "unspecified venue failure"
	}
	return Outcome{Failure: reason}
}

// Venue executes and quotes swaps. Swap never returns a Go error: failures
// surface in the Outcome so the resolver treats transport and venue-side
// failures uniformly.
type Venue interface {
	Swap(ctx context.Context, req SwapRequest) Outcome
	Quote(ctx context.Context, req SwapRequest) (asset.Amount, error)
}

// Converter bridges native and ledger-backed representations of the same
// logical token. Conversion is exact: a representation change, not a trade.
type Converter interface {
	Convert(ctx context.Context, from asset.Amount, to asset.Info) Outcome
	Convertible(from, to asset.Info) bool
	// Target selects which of the accepted assets the held asset can convert
	// into. The second return is false when no conversion path exists.
	Target(from asset.Info, accepted []asset.Info) (asset.Info, bool)
}

// Bank is the custody and payout boundary. Custody moves the initiator's
// offered funds under engine control; Refund restores them unchanged; Transfer
// pays out a settled route; Balance serves sweep and inspection queries.
type Bank interface {
	Custody(ctx context.Context, initiator string, amount asset.Amount) error
	Refund(ctx context.Context, initiator string, amount asset.Amount) error
	Transfer(ctx context.Context, recipient string, amount asset.Amount) error
	Balance(ctx context.Context, holder string, info asset.Info) (asset.Amount, error)
}
