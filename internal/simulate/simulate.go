// Package simulate computes the expected outcome of a route without moving
// funds: venue quotes stand in for swaps, representation conversions are
// applied at face value, and configured venue fees are deducted.
package simulate

import (
	"context"
	"fmt"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/asset"
	"github.com/coachpo/swapflow/internal/fees"
	"github.com/coachpo/swapflow/internal/route"
	"github.com/coachpo/swapflow/internal/venue"
)

// Simulator quotes routes against live venues and the fee schedule.
type Simulator struct {
	venues    *venue.Registry
	converter venue.Converter
	fees      *fees.Schedule
}

// New constructs a Simulator. The fee schedule may be nil, meaning no fees.
func New(venues *venue.Registry, converter venue.Converter, schedule *fees.Schedule) *Simulator {
	s := new(Simulator)
	s.venues = venues
	s.converter = converter
	s.fees = schedule
	return s
}

// StageResult reports one stage's simulated outputs before normalization.
type StageResult struct {
	Outputs     []asset.Amount `json:"outputs"`
	Conversions int            `json:"conversions"`
}

// Result is the simulated outcome of a full route.
type Result struct {
	Final        asset.Amount  `json:"final"`
	Stages       []StageResult `json:"stages"`
	Conversions  int           `json:"conversions"`
	MeetsMinimum bool          `json:"meets_minimum"`
	FeesDeducted bool          `json:"fees_deducted"`
}

// Simulate walks the route with quotes, using the same split allocation and
// normalization rules the executing engine applies.
func (s *Simulator) Simulate(ctx context.Context, offer asset.Amount, r route.Route) (Result, error) {
	if err := route.Validate(r, offer, s.converter); err != nil {
		return Result{}, err
	}

	result := Result{}
	balances := map[asset.Info]uint64{offer.Asset: offer.Quantity}

	for _, stg := range r.Stages {
		normalized, converted, err := s.normalize(balances, stg.InputAssets())
		if err != nil {
			return Result{}, err
		}
		result.Conversions += converted
		balances = normalized

		outputs := make(map[asset.Info]uint64)
		stageResult := StageResult{}

		allocations, err := allocate(stg, balances)
		if err != nil {
			return Result{}, err
		}
		for i, split := range stg.Splits {
			carried := asset.NewAmount(split.Start(), allocations[i])
			for _, op := range split.Path {
				if carried.Asset != op.Offer {
					if !s.converter.Convertible(carried.Asset, op.Offer) {
						return Result{}, errs.New("simulate/route", errs.CodeNormalization,
							errs.WithMessage(fmt.Sprintf("no conversion from %s to %s", carried.Asset, op.Offer)))
					}
					carried = asset.NewAmount(op.Offer, carried.Quantity)
					stageResult.Conversions++
				}
				carried, err = s.quote(ctx, op, carried)
				if err != nil {
					return Result{}, err
				}
			}
			sum, err := asset.CheckedAdd(outputs[carried.Asset], carried.Quantity)
			if err != nil {
				return Result{}, err
			}
			outputs[carried.Asset] = sum
		}

		result.Conversions += stageResult.Conversions
		for _, info := range stageOutputsOrdered(stg, outputs) {
			stageResult.Outputs = append(stageResult.Outputs, asset.NewAmount(info, outputs[info]))
		}
		result.Stages = append(result.Stages, stageResult)
		balances = outputs
	}

	final := r.FinalAsset()
	normalized, converted, err := s.normalize(balances, []asset.Info{final})
	if err != nil {
		return Result{}, err
	}
	result.Conversions += converted

	var total uint64
	for info, quantity := range normalized {
		if info != final {
			return Result{}, errs.New("simulate/route", errs.CodeNormalization,
				errs.WithMessage(fmt.Sprintf("residual balance in %s after final normalization", info)))
		}
		sum, err := asset.CheckedAdd(total, quantity)
		if err != nil {
			return Result{}, err
		}
		total = sum
	}
	result.Final = asset.NewAmount(final, total)
	result.MeetsMinimum = r.MinimumReceive == nil || total >= *r.MinimumReceive
	result.FeesDeducted = s.fees != nil
	return result, nil
}

func (s *Simulator) quote(ctx context.Context, op route.Operation, carried asset.Amount) (asset.Amount, error) {
	v, err := s.venues.Resolve(op.Venue)
	if err != nil {
		return asset.Amount{}, err
	}
	quoted, err := v.Quote(ctx, venue.SwapRequest{Kind: op.Kind, Venue: op.Venue, Offer: carried, Ask: op.Ask})
	if err != nil {
		return asset.Amount{}, fmt.Errorf("quote %s on %s: %w", carried, op.Venue, err)
	}
	if s.fees != nil {
		rate, found, err := s.fees.Rate(ctx, op.Venue)
		if err != nil {
			return asset.Amount{}, err
		}
		if found {
			quoted.Quantity = fees.Apply(quoted.Quantity, rate)
		}
	}
	return quoted, nil
}

func (s *Simulator) normalize(balances map[asset.Info]uint64, accepted []asset.Info) (map[asset.Info]uint64, int, error) {
	out := make(map[asset.Info]uint64, len(balances))
	converted := 0
	for held, quantity := range balances {
		target := held
		if !contains(accepted, held) {
			candidate, ok := s.converter.Target(held, accepted)
			if !ok {
				return nil, 0, errs.New("simulate/route", errs.CodeNormalization,
					errs.WithMessage(fmt.Sprintf("no conversion from %s to any accepted asset", held)))
			}
			target = candidate
			converted++
		}
		sum, err := asset.CheckedAdd(out[target], quantity)
		if err != nil {
			return nil, 0, err
		}
		out[target] = sum
	}
	return out, converted, nil
}

// allocate mirrors the engine's split allocation: percent of the per-asset
// group total, with the last split of each group absorbing the remainder.
func allocate(stg route.Stage, balances map[asset.Info]uint64) ([]uint64, error) {
	lastFor := make(map[asset.Info]int, len(stg.Splits))
	for i, split := range stg.Splits {
		lastFor[split.Start()] = i
	}
	allocated := make(map[asset.Info]uint64, len(balances))
	out := make([]uint64, len(stg.Splits))
	for i, split := range stg.Splits {
		start := split.Start()
		total := balances[start]
		if lastFor[start] == i {
			out[i] = total - allocated[start]
		} else {
			q, err := asset.MulRatio(total, uint64(split.Percent), 100)
			if err != nil {
				return nil, err
			}
			out[i] = q
		}
		allocated[start] += out[i]
	}
	return out, nil
}

func stageOutputsOrdered(stg route.Stage, outputs map[asset.Info]uint64) []asset.Info {
	ordered := make([]asset.Info, 0, len(outputs))
	seen := make(map[asset.Info]struct{}, len(outputs))
	for _, split := range stg.Splits {
		end := split.End()
		if _, ok := outputs[end]; !ok {
			continue
		}
		if _, dup := seen[end]; dup {
			continue
		}
		seen[end] = struct{}{}
		ordered = append(ordered, end)
	}
	for info := range outputs {
		if _, dup := seen[info]; !dup {
			ordered = append(ordered, info)
		}
	}
	return ordered
}

func contains(set []asset.Info, a asset.Info) bool {
	for _, candidate := range set {
		if candidate == a {
			return true
		}
	}
	return false
}
