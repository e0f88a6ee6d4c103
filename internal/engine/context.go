package engine

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/asset"
	"github.com/coachpo/swapflow/internal/route"
	"github.com/coachpo/swapflow/internal/store"
)

// Phase names the scheduler states of an in-flight execution.
type Phase string

const (
	// PhaseDispatching marks the engine fanning out a stage's splits.
	PhaseDispatching Phase = "dispatching"
	// PhaseAwaitingStage marks the engine waiting for a stage's splits to settle.
	PhaseAwaitingStage Phase = "awaiting_stage"
	// PhaseNormalizing marks a stage-boundary asset normalization in progress.
	PhaseNormalizing Phase = "normalizing"
	// PhasePaying marks the final payout in progress.
	PhasePaying Phase = "paying"
	// PhaseSettled marks a successfully paid out execution.
	PhaseSettled Phase = "settled"
	// PhaseReverted marks a fully aborted execution.
	PhaseReverted Phase = "reverted"
)

// SplitStatus tracks one split's progress through its path.
type SplitStatus string

const (
	// SplitPending marks a split with an in-flight hop.
	SplitPending SplitStatus = "pending"
	// SplitAwaitingConversion marks a split suspended on a mid-path conversion.
	SplitAwaitingConversion SplitStatus = "awaiting_conversion"
	// SplitSettled marks a split whose path has fully executed.
	SplitSettled SplitStatus = "settled"
	// SplitFailed marks a split whose hop reported failure.
	SplitFailed SplitStatus = "failed"
)

// SplitState is the persisted per-split execution cursor.
type SplitState struct {
	Status     SplitStatus  `json:"status"`
	PathCursor int          `json:"path_cursor"`
	Carried    asset.Amount `json:"carried"`
}

// Context is the persisted state of one in-flight route execution. It is
// created at route entry and destroyed exactly once, at payout or reversal.
type Context struct {
	ID         uuid.UUID      `json:"id"`
	Initiator  string         `json:"initiator"`
	Route      route.Route    `json:"route"`
	Phase      Phase          `json:"phase"`
	StageIndex int            `json:"stage_index"`
	Splits     []SplitState   `json:"splits"`
	Balances   []asset.Amount `json:"balances"`
	Custody    asset.Amount   `json:"custody"`
}

// MergeBalance folds an amount into the accumulated stage-output balances,
// summing by asset identity. The merge commutes, so settlement order does not
// affect totals.
func (c *Context) MergeBalance(amount asset.Amount) error {
	for i := range c.Balances {
		if c.Balances[i].Asset == amount.Asset {
			sum, err := c.Balances[i].Add(amount)
			if err != nil {
				return err
			}
			c.Balances[i] = sum
			return nil
		}
	}
	c.Balances = append(c.Balances, amount)
	return nil
}

// TotalBalance sums the balances, which must share a single asset identity.
func (c *Context) TotalBalance() (asset.Amount, error) {
	if len(c.Balances) == 0 {
		return asset.Amount{}, errs.New("engine/context", errs.CodeInvalid,
			errs.WithMessage("no accumulated balances"))
	}
	total := c.Balances[0]
	for _, entry := range c.Balances[1:] {
		sum, err := total.Add(entry)
		if err != nil {
			return asset.Amount{}, err
		}
		total = sum
	}
	return total, nil
}

// StagePending reports whether any split is still pending or awaiting a
// conversion.
func (c *Context) StagePending() bool {
	for _, split := range c.Splits {
		if split.Status == SplitPending || split.Status == SplitAwaitingConversion {
			return true
		}
	}
	return false
}

const execKeyPrefix = "exec/"

func execKey(id uuid.UUID) string { return execKeyPrefix + id.String() }

func saveContext(kv store.KV, ectx *Context) error {
	encoded, err := json.Marshal(ectx)
	if err != nil {
		return fmt.Errorf("encode execution context: %w", err)
	}
	kv.Set(execKey(ectx.ID), encoded)
	return nil
}

func loadContext(kv store.KV, id uuid.UUID) (*Context, error) {
	encoded, ok := kv.Get(execKey(id))
	if !ok {
		return nil, errs.New("engine/context", errs.CodeNotFound,
			errs.WithMessage(fmt.Sprintf("execution %s not found", id)))
	}
	ectx := new(Context)
	if err := json.Unmarshal(encoded, ectx); err != nil {
		return nil, fmt.Errorf("decode execution context: %w", err)
	}
	return ectx, nil
}

func deleteContext(kv store.KV, id uuid.UUID) {
	kv.Delete(execKey(id))
}
