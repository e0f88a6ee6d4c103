package route

import (
	"fmt"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/asset"
)

// Validation rule identifiers carried on errs.CodeValidation envelopes.
const (
	RuleStagesNonEmpty  = "stages_non_empty"
	RuleSplitsNonEmpty  = "splits_non_empty"
	RulePercentSum      = "percent_sum"
	RulePathNonEmpty    = "path_non_empty"
	RulePathContinuity  = "path_continuity"
	RuleOperationShape  = "operation_shape"
	RuleInitialFunds    = "initial_funds"
	RulePositiveOffer   = "positive_offer"
	RuleFinalNormalized = "final_normalizable"
)

// Convertibility answers whether one asset representation can be converted into
// another by the conversion adapter. Implemented by the adapter's pair table.
type Convertibility interface {
	Convertible(from, to asset.Info) bool
}

// Validate checks a submitted route against the custodied input before any
// funds move. Checks run in order: stages non-empty, per-stage split percents
// sum to exactly 100, paths non-empty, in-path hop continuity (equal or
// convertible assets), and first-stage offer assets matching the custodied
// asset. The first violation is returned; no partial state is created.
func Validate(r Route, custodied asset.Amount, conv Convertibility) error {
	if custodied.IsZero() {
		return violation(RulePositiveOffer, "offered amount must be greater than zero")
	}
	if err := custodied.Asset.Validate(); err != nil {
		return fmt.Errorf("validate custodied asset: %w", err)
	}
	if len(r.Stages) == 0 {
		return violation(RuleStagesNonEmpty, "route must contain at least one stage")
	}

	for stageIdx, stage := range r.Stages {
		if len(stage.Splits) == 0 {
			return violation(RuleSplitsNonEmpty, fmt.Sprintf("stage %d has no splits", stageIdx))
		}
		var percentSum int
		for splitIdx, split := range stage.Splits {
			if split.Percent < 1 || split.Percent > 100 {
				return violation(RulePercentSum,
					fmt.Sprintf("stage %d split %d percent %d outside 1-100", stageIdx, splitIdx, split.Percent))
			}
			percentSum += int(split.Percent)
			if len(split.Path) == 0 {
				return violation(RulePathNonEmpty,
					fmt.Sprintf("stage %d split %d has an empty path", stageIdx, splitIdx))
			}
			for hopIdx, op := range split.Path {
				if err := validateOperation(op); err != nil {
					return fmt.Errorf("stage %d split %d hop %d: %w", stageIdx, splitIdx, hopIdx, err)
				}
				if hopIdx == 0 {
					continue
				}
				prev := split.Path[hopIdx-1]
				if prev.Ask == op.Offer {
					continue
				}
				// A representation mismatch is accepted when the adapter can
				// bridge it; the engine inserts a mid-path conversion there.
				if conv != nil && conv.Convertible(prev.Ask, op.Offer) {
					continue
				}
				return violation(RulePathContinuity,
					fmt.Sprintf("stage %d split %d hop %d offers %s but previous hop produced %s",
						stageIdx, splitIdx, hopIdx, op.Offer, prev.Ask))
			}
		}
		if percentSum != 100 {
			return violation(RulePercentSum,
				fmt.Sprintf("stage %d split percents sum to %d, want exactly 100", stageIdx, percentSum))
		}
	}

	for splitIdx, split := range r.Stages[0].Splits {
		start := split.Start()
		if start == custodied.Asset {
			continue
		}
		if conv != nil && conv.Convertible(custodied.Asset, start) {
			continue
		}
		return violation(RuleInitialFunds,
			fmt.Sprintf("first stage split %d starts with %s but custodied asset is %s",
				splitIdx, start, custodied.Asset))
	}

	final := r.FinalAsset()
	lastStage := r.Stages[len(r.Stages)-1]
	for splitIdx, split := range lastStage.Splits {
		end := split.End()
		if end == final {
			continue
		}
		if conv != nil && conv.Convertible(end, final) {
			continue
		}
		return violation(RuleFinalNormalized,
			fmt.Sprintf("last stage split %d terminates in %s which cannot normalize to payout asset %s",
				splitIdx, end, final))
	}

	return nil
}

func validateOperation(op Operation) error {
	switch op.Kind {
	case OpAmmSwap, OpOrderbookSwap:
	default:
		return violation(RuleOperationShape, fmt.Sprintf("unknown operation kind %q", op.Kind))
	}
	if op.Venue == "" {
		return violation(RuleOperationShape, "operation venue required")
	}
	if err := op.Offer.Validate(); err != nil {
		return fmt.Errorf("offer asset: %w", err)
	}
	if err := op.Ask.Validate(); err != nil {
		return fmt.Errorf("ask asset: %w", err)
	}
	return nil
}

func violation(rule, message string) error {
	return errs.New("route/validate", errs.CodeValidation, errs.WithRule(rule), errs.WithMessage(message))
}
