package engine

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/store"
)

// ContinuationKind classifies the suspension point a continuation resumes.
type ContinuationKind string

const (
	// KindPathHop resumes after a venue swap call.
	KindPathHop ContinuationKind = "path_hop"
	// KindMidPathConversion resumes after a conversion between two hops of one path.
	KindMidPathConversion ContinuationKind = "mid_path_conversion"
	// KindStageNormalization resumes after a stage-boundary conversion.
	KindStageNormalization ContinuationKind = "stage_normalization"
	// KindFinalNormalization resumes after a pre-payout conversion.
	KindFinalNormalization ContinuationKind = "final_normalization"
)

// Continuation correlates a dispatched external call with the context needed
// to resume processing its outcome. It is persisted immediately before the
// call is issued and consumed exactly once when the outcome arrives.
// SplitIndex is -1 for execution-scoped normalization continuations.
type Continuation struct {
	ID          uuid.UUID        `json:"id"`
	ExecutionID uuid.UUID        `json:"execution_id"`
	SplitIndex  int              `json:"split_index"`
	Kind        ContinuationKind `json:"kind"`
}

const contKeyPrefix = "cont/"

func contKey(id uuid.UUID) string { return contKeyPrefix + id.String() }

func saveContinuation(kv store.KV, cont Continuation) error {
	encoded, err := json.Marshal(cont)
	if err != nil {
		return fmt.Errorf("encode continuation: %w", err)
	}
	kv.Set(contKey(cont.ID), encoded)
	return nil
}

// takeContinuation consumes the continuation: it is removed from storage so a
// duplicate outcome for the same call cannot resume twice.
func takeContinuation(kv store.KV, id uuid.UUID) (Continuation, error) {
	encoded, ok := kv.Get(contKey(id))
	if !ok {
		return Continuation{}, errs.New("engine/continuation", errs.CodeNotFound,
			errs.WithMessage(fmt.Sprintf("continuation %s not found or already consumed", id)))
	}
	var cont Continuation
	if err := json.Unmarshal(encoded, &cont); err != nil {
		return Continuation{}, fmt.Errorf("decode continuation: %w", err)
	}
	kv.Delete(contKey(id))
	return cont, nil
}

// countContinuations reports how many un-consumed continuations of the kind
// remain for the execution. The resolver uses this to detect the last
// outstanding normalization conversion.
func countContinuations(kv store.KV, executionID uuid.UUID, kind ContinuationKind) int {
	count := 0
	kv.Scan(contKeyPrefix, func(_ string, value []byte) bool {
		var cont Continuation
		if err := json.Unmarshal(value, &cont); err != nil {
			return true
		}
		if cont.ExecutionID == executionID && cont.Kind == kind {
			count++
		}
		return true
	})
	return count
}
