// Package route defines the user-submitted swap route model: stages of
// percent-weighted splits, each split an ordered path of venue operations.
package route

import (
	"fmt"

	"github.com/coachpo/swapflow/internal/asset"
)

// OpKind discriminates the supported venue operation shapes.
type OpKind string

const (
	// OpAmmSwap trades against a constant-product pool.
	OpAmmSwap OpKind = "amm_swap"
	// OpOrderbookSwap trades against an orderbook venue.
	OpOrderbookSwap OpKind = "orderbook_swap"
)

// Operation is a single hop: exactly one offer asset consumed, exactly one ask
// asset produced at the named venue.
type Operation struct {
	Kind  OpKind     `json:"kind"`
	Venue string     `json:"venue"`
	Offer asset.Info `json:"offer"`
	Ask   asset.Info `json:"ask"`
}

func (o Operation) String() string {
	return fmt.Sprintf("%s@%s %s->%s", o.Kind, o.Venue, o.Offer, o.Ask)
}

// Split allocates a percentage of a stage's input to one path of operations.
type Split struct {
	Percent uint8       `json:"percent"`
	Path    []Operation `json:"path"`
}

// Start returns the offer asset consumed by the split's first hop.
func (s Split) Start() asset.Info {
	if len(s.Path) == 0 {
		return asset.Info{}
	}
	return s.Path[0].Offer
}

// End returns the ask asset produced by the split's final hop.
func (s Split) End() asset.Info {
	if len(s.Path) == 0 {
		return asset.Info{}
	}
	return s.Path[len(s.Path)-1].Ask
}

// Stage is a synchronization barrier: every split must settle before the next
// stage begins.
type Stage struct {
	Splits []Split `json:"splits"`
}

// InputAssets returns the distinct offer assets the stage's paths start with,
// in first-seen order.
func (s Stage) InputAssets() []asset.Info {
	var inputs []asset.Info
	for _, split := range s.Splits {
		start := split.Start()
		seen := false
		for _, existing := range inputs {
			if existing == start {
				seen = true
				break
			}
		}
		if !seen {
			inputs = append(inputs, start)
		}
	}
	return inputs
}

// Route is the full submitted graph plus an optional minimum-output guard.
type Route struct {
	Stages         []Stage `json:"stages"`
	MinimumReceive *uint64 `json:"minimum_receive,omitempty"`
}

// FinalAsset returns the payout asset: the terminal ask asset of the last
// stage's first split. Validation guarantees all last-stage paths terminate in
// assets normalizable to this one.
func (r Route) FinalAsset() asset.Info {
	if len(r.Stages) == 0 {
		return asset.Info{}
	}
	last := r.Stages[len(r.Stages)-1]
	if len(last.Splits) == 0 {
		return asset.Info{}
	}
	return last.Splits[0].End()
}
