package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/asset"
	"github.com/coachpo/swapflow/internal/engine"
	"github.com/coachpo/swapflow/internal/observability"
	"github.com/coachpo/swapflow/internal/route"
)

type executeRequest struct {
	Initiator string       `json:"initiator"`
	Offer     asset.Amount `json:"offer"`
	Route     route.Route  `json:"route"`
}

type simulateRequest struct {
	Offer asset.Amount `json:"offer"`
	Route route.Route  `json:"route"`
}

type feeRequest struct {
	Rate string `json:"rate"`
}

type collectorRequest struct {
	Address string `json:"address"`
}

// withdrawRequest names the asset to sweep; a zero quantity sweeps the full
// held balance.
type withdrawRequest struct {
	Recipient string       `json:"recipient"`
	Amount    asset.Amount `json:"amount"`
}

func (s *httpServer) executeRoute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	receipt, err := s.execute(r.Context(), req)
	if err != nil {
		observability.Log().Info("route rejected",
			observability.Field{Key: "initiator", Value: req.Initiator},
			observability.Field{Key: "reason", Value: err.Error()})
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

type execResult struct {
	receipt engine.Receipt
	err     error
}

// execute runs the route on the bounded execution pool when one is wired so
// that a burst of routes degrades to rejection instead of unbounded
// concurrency.
func (s *httpServer) execute(ctx context.Context, req executeRequest) (engine.Receipt, error) {
	if s.deps.Exec == nil {
		return s.deps.Engine.Execute(ctx, req.Initiator, req.Offer, req.Route)
	}
	done := make(chan execResult, 1)
	err := s.deps.Exec.Submit(ctx, func(taskCtx context.Context) error {
		receipt, execErr := s.deps.Engine.Execute(taskCtx, req.Initiator, req.Offer, req.Route)
		done <- execResult{receipt: receipt, err: execErr}
		return nil
	})
	if err != nil {
		return engine.Receipt{}, err
	}
	select {
	case result := <-done:
		return result.receipt, result.err
	case <-ctx.Done():
		return engine.Receipt{}, fmt.Errorf("await execution: %w", ctx.Err())
	}
}

func (s *httpServer) simulateRoute(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.deps.Simulator.Simulate(r.Context(), req.Offer, req.Route)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *httpServer) listExecutions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, "execution journal disabled")
		return
	}
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)
	records, err := s.deps.Journal.Executions(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": records})
}

func (s *httpServer) getExecution(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, executionsPrefix)
	idPart, tail, _ := strings.Cut(rest, "/")
	id, err := uuid.Parse(idPart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed execution id")
		return
	}
	switch tail {
	case "":
		s.executionDetail(w, r, id)
	case "events":
		s.executionEvents(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "unknown resource")
	}
}

func (s *httpServer) executionDetail(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	// A live context means the execution is mid-flight; settled and reverted
	// executions are only visible through the journal.
	if ectx, err := s.deps.Engine.Inspect(r.Context(), id); err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"state": "in_flight", "context": ectx})
		return
	} else if errs.CodeOf(err) != errs.CodeNotFound {
		writeDomainError(w, err)
		return
	}
	if s.deps.Journal == nil {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	record, err := s.deps.Journal.Execution(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": record.Phase, "execution": record})
}

func (s *httpServer) executionEvents(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if s.deps.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, "execution journal disabled")
		return
	}
	evts, err := s.deps.Journal.Events(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}

func (s *httpServer) listFees(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)
	schedule, err := s.deps.Fees.List(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	collector, _, err := s.deps.Fees.Collector(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fees": schedule, "collector": collector})
}

func (s *httpServer) setCollector(w http.ResponseWriter, r *http.Request) {
	var req collectorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.deps.Fees.SetCollector(r.Context(), req.Address); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *httpServer) setFee(w http.ResponseWriter, r *http.Request) {
	venueName := strings.TrimPrefix(r.URL.Path, feesPrefix)
	if venueName == "" {
		writeError(w, http.StatusBadRequest, "missing venue name")
		return
	}
	var req feeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	fee, err := decimal.NewFromString(req.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed fee rate: "+err.Error())
		return
	}
	if err := s.deps.Fees.Set(r.Context(), venueName, fee); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *httpServer) removeFee(w http.ResponseWriter, r *http.Request) {
	venueName := strings.TrimPrefix(r.URL.Path, feesPrefix)
	if venueName == "" {
		writeError(w, http.StatusBadRequest, "missing venue name")
		return
	}
	if err := s.deps.Fees.Remove(r.Context(), venueName); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *httpServer) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Recipient == "" {
		writeError(w, http.StatusBadRequest, "missing recipient")
		return
	}
	if req.Amount.Asset.Zero() {
		writeError(w, http.StatusBadRequest, "missing withdraw asset")
		return
	}
	amount := req.Amount
	if amount.Quantity == 0 {
		held, err := s.deps.Bank.Balance(r.Context(), s.deps.EngineAccount, req.Amount.Asset)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if held.Quantity == 0 {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "swept": held})
			return
		}
		amount = held
	}
	if err := s.deps.Bank.Transfer(r.Context(), req.Recipient, amount); err != nil {
		writeDomainError(w, err)
		return
	}
	observability.Log().Info("emergency withdraw",
		observability.Field{Key: "recipient", Value: req.Recipient},
		observability.Field{Key: "asset", Value: amount.Asset.String()},
		observability.Field{Key: "quantity", Value: amount.Quantity})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "swept": amount})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
