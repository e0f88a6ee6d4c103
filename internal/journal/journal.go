// Package journal persists execution history to PostgreSQL. The engine's
// in-flight state lives in the transactional key-value store; the journal is
// the durable audit trail of what each execution did and how it ended.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/asset"
	"github.com/coachpo/swapflow/internal/engine"
)

const (
	insertExecutionSQL = `
INSERT INTO executions (id, initiator, phase, stage_index, custody, created_at, updated_at)
VALUES (@id, @initiator, 'running', @stage_index, @custody::jsonb, NOW(), NOW())
ON CONFLICT (id) DO NOTHING;
`

	settleExecutionSQL = `
UPDATE executions
SET phase = 'settled',
    stage_index = @stage_index,
    paid = @paid::jsonb,
    updated_at = NOW()
WHERE id = @id;
`

	revertExecutionSQL = `
UPDATE executions
SET phase = 'reverted',
    stage_index = @stage_index,
    detail = @detail,
    updated_at = NOW()
WHERE id = @id;
`

	insertEventSQL = `
INSERT INTO execution_events (execution_id, event_type, stage_index, amount, detail, recorded_at)
VALUES (@execution_id, @event_type, @stage_index, @amount::jsonb, @detail, NOW());
`

	selectExecutionSQL = `
SELECT id, initiator, phase, stage_index, custody, paid, detail, created_at, updated_at
FROM executions
WHERE id = @id;
`

	listExecutionsSQL = `
SELECT id, initiator, phase, stage_index, custody, paid, detail, created_at, updated_at
FROM executions
ORDER BY created_at DESC
LIMIT @limit OFFSET @offset;
`

	listEventsSQL = `
SELECT event_type, stage_index, amount, detail, recorded_at
FROM execution_events
WHERE execution_id = @execution_id
ORDER BY id;
`
)

// ExecutionRecord is one journaled execution row.
type ExecutionRecord struct {
	ID         uuid.UUID     `json:"id"`
	Initiator  string        `json:"initiator"`
	Phase      string        `json:"phase"`
	StageIndex int           `json:"stage_index"`
	Custody    asset.Amount  `json:"custody"`
	Paid       *asset.Amount `json:"paid,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// EventRecord is one journaled lifecycle event.
type EventRecord struct {
	Type       string        `json:"type"`
	StageIndex int           `json:"stage_index"`
	Amount     *asset.Amount `json:"amount,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Recorder reads and writes the journal tables.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder constructs a Recorder backed by the provided pool.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	r := new(Recorder)
	r.pool = pool
	return r
}

// Apply folds one engine event into the journal: accepted events open a row,
// paid and reverted events close it, and every event lands in the event table.
func (r *Recorder) Apply(ctx context.Context, event engine.Event) error {
	switch event.Type {
	case engine.EventAccepted:
		custody, err := json.Marshal(event.Amount)
		if err != nil {
			return fmt.Errorf("encode custody: %w", err)
		}
		if _, err := r.pool.Exec(ctx, insertExecutionSQL, pgx.NamedArgs{
			"id":          event.ExecutionID,
			"initiator":   event.Initiator,
			"stage_index": event.Stage,
			"custody":     string(custody),
		}); err != nil {
			return fmt.Errorf("journal accepted: %w", err)
		}
	case engine.EventPaid:
		paid, err := json.Marshal(event.Amount)
		if err != nil {
			return fmt.Errorf("encode paid: %w", err)
		}
		if _, err := r.pool.Exec(ctx, settleExecutionSQL, pgx.NamedArgs{
			"id":          event.ExecutionID,
			"stage_index": event.Stage,
			"paid":        string(paid),
		}); err != nil {
			return fmt.Errorf("journal settle: %w", err)
		}
	case engine.EventReverted:
		if _, err := r.pool.Exec(ctx, revertExecutionSQL, pgx.NamedArgs{
			"id":          event.ExecutionID,
			"stage_index": event.Stage,
			"detail":      event.Detail,
		}); err != nil {
			return fmt.Errorf("journal revert: %w", err)
		}
	}

	var amount any
	if !event.Amount.Asset.Zero() {
		encoded, err := json.Marshal(event.Amount)
		if err != nil {
			return fmt.Errorf("encode event amount: %w", err)
		}
		amount = string(encoded)
	}
	if _, err := r.pool.Exec(ctx, insertEventSQL, pgx.NamedArgs{
		"execution_id": event.ExecutionID,
		"event_type":   event.Type,
		"stage_index":  event.Stage,
		"amount":       amount,
		"detail":       event.Detail,
	}); err != nil {
		return fmt.Errorf("journal event: %w", err)
	}
	return nil
}

// Execution fetches one journaled execution.
func (r *Recorder) Execution(ctx context.Context, id uuid.UUID) (ExecutionRecord, error) {
	row := r.pool.QueryRow(ctx, selectExecutionSQL, pgx.NamedArgs{"id": id})
	record, err := scanExecution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ExecutionRecord{}, errs.New("journal/query", errs.CodeNotFound,
			errs.WithMessage(fmt.Sprintf("execution %s not journaled", id)))
	}
	if err != nil {
		return ExecutionRecord{}, fmt.Errorf("query execution: %w", err)
	}
	return record, nil
}

// Executions lists journaled executions, newest first.
func (r *Recorder) Executions(ctx context.Context, limit, offset int) ([]ExecutionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, listExecutionsSQL, pgx.NamedArgs{"limit": limit, "offset": offset})
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}

// Events lists an execution's journaled events in emission order.
func (r *Recorder) Events(ctx context.Context, id uuid.UUID) ([]EventRecord, error) {
	rows, err := r.pool.Query(ctx, listEventsSQL, pgx.NamedArgs{"execution_id": id})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var record EventRecord
		var amount []byte
		var detail *string
		if err := rows.Scan(&record.Type, &record.StageIndex, &amount, &detail, &record.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(amount) > 0 {
			var decoded asset.Amount
			if err := json.Unmarshal(amount, &decoded); err != nil {
				return nil, fmt.Errorf("decode event amount: %w", err)
			}
			record.Amount = &decoded
		}
		if detail != nil {
			record.Detail = *detail
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func scanExecution(row pgx.Row) (ExecutionRecord, error) {
	var record ExecutionRecord
	var custody, paid []byte
	var detail *string
	if err := row.Scan(&record.ID, &record.Initiator, &record.Phase, &record.StageIndex,
		&custody, &paid, &detail, &record.CreatedAt, &record.UpdatedAt); err != nil {
		return ExecutionRecord{}, err
	}
	if err := json.Unmarshal(custody, &record.Custody); err != nil {
		return ExecutionRecord{}, fmt.Errorf("decode custody: %w", err)
	}
	if len(paid) > 0 {
		var decoded asset.Amount
		if err := json.Unmarshal(paid, &decoded); err != nil {
			return ExecutionRecord{}, fmt.Errorf("decode paid: %w", err)
		}
		record.Paid = &decoded
	}
	if detail != nil {
		record.Detail = *detail
	}
	return record, nil
}
