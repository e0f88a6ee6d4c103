// Package fake provides synthetic venues, a pair-table converter, and an
// in-memory bank for testing and development.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/asset"
	"github.com/coachpo/swapflow/internal/venue"
)

// Venue is a deterministic fixed-rate swap venue. Each (offer, ask) pair maps
// to a decimal rate; output = floor(offer quantity * rate). Pairs without a
// configured rate fail the swap, and an explicit failure reason can be armed
// to simulate venue-side rejections.
type Venue struct {
	mu      sync.Mutex
	rates   map[[2]asset.Info]decimal.Decimal
	bank    *Bank
	failure string
	swaps   int
	quotes  int
}

// NewVenue constructs a fake venue with no configured pairs.
func NewVenue() *Venue {
	v := new(Venue)
	v.rates = make(map[[2]asset.Info]decimal.Decimal)
	return v
}

// SetRate configures the conversion rate for an (offer, ask) pair.
func (v *Venue) SetRate(offer, ask asset.Info, rate decimal.Decimal) *Venue {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rates[[2]asset.Info{offer, ask}] = rate
	return v
}

// BindBank credits executed swap proceeds to the engine account so a later
// payout transfer is covered. Custodied funds are left untouched; the engine
// refunds them directly when a route aborts. Unbound venues leave balances
// alone.
func (v *Venue) BindBank(b *Bank) *Venue {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bank = b
	return v
}

// FailWith arms the venue to fail every subsequent swap with the reason.
func (v *Venue) FailWith(reason string) *Venue {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failure = reason
	return v
}

// SwapCount returns how many swap calls the venue has served.
func (v *Venue) SwapCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.swaps
}

// Swap executes the fixed-rate trade.
func (v *Venue) Swap(_ context.Context, req venue.SwapRequest) venue.Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.swaps++
	if v.failure != "" {
		return venue.Fail(v.failure)
	}
	produced, err := v.convert(req)
	if err != nil {
		return venue.Fail(err.Error())
	}
	if v.bank != nil {
		v.bank.Deposit(produced)
	}
	return venue.Succeed(produced)
}

// Quote simulates the trade without executing it.
func (v *Venue) Quote(_ context.Context, req venue.SwapRequest) (asset.Amount, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.quotes++
	if v.failure != "" {
		return asset.Amount{}, errs.New("venue/fake", errs.CodeVenue, errs.WithMessage(v.failure))
	}
	return v.convert(req)
}

func (v *Venue) convert(req venue.SwapRequest) (asset.Amount, error) {
	rate, ok := v.rates[[2]asset.Info{req.Offer.Asset, req.Ask}]
	if !ok {
		return asset.Amount{}, fmt.Errorf("no market for %s -> %s", req.Offer.Asset, req.Ask)
	}
	out := decimal.NewFromUint64(req.Offer.Quantity).Mul(rate).Floor()
	if out.IsNegative() || !out.BigInt().IsUint64() {
		return asset.Amount{}, fmt.Errorf("rate produces out-of-range output for %s", req.Offer)
	}
	return asset.NewAmount(req.Ask, out.BigInt().Uint64()), nil
}

// Converter bridges representation pairs exactly (1:1), mirroring the token
// adapter boundary. Conversions preserve quantity.
type Converter struct {
	mu    sync.Mutex
	pairs map[[2]asset.Info]bool
	bank  *Bank
	calls int
}

// NewConverter constructs a converter with no registered pairs.
func NewConverter() *Converter {
	c := new(Converter)
	c.pairs = make(map[[2]asset.Info]bool)
	return c
}

// Bridge registers a bidirectional conversion pair.
func (c *Converter) Bridge(a, b asset.Info) *Converter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs[[2]asset.Info{a, b}] = true
	c.pairs[[2]asset.Info{b, a}] = true
	return c
}

// BindBank credits conversion output to the engine account at the same
// quantity, mirroring the venue behavior.
func (c *Converter) BindBank(b *Bank) *Converter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bank = b
	return c
}

// Calls returns how many conversions have been executed.
func (c *Converter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Convert performs the exact representation change.
func (c *Converter) Convert(_ context.Context, from asset.Amount, to asset.Info) venue.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if !c.pairs[[2]asset.Info{from.Asset, to}] {
		return venue.Fail(fmt.Sprintf("no conversion path from %s to %s", from.Asset, to))
	}
	produced := asset.NewAmount(to, from.Quantity)
	if c.bank != nil {
		c.bank.Deposit(produced)
	}
	return venue.Succeed(produced)
}

// Convertible reports whether a registered pair links the two assets.
func (c *Converter) Convertible(from, to asset.Info) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairs[[2]asset.Info{from, to}]
}

// Target selects the first accepted asset reachable from the held asset.
func (c *Converter) Target(from asset.Info, accepted []asset.Info) (asset.Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, candidate := range accepted {
		if c.pairs[[2]asset.Info{from, candidate}] {
			return candidate, true
		}
	}
	return asset.Info{}, false
}

// Bank is an in-memory balance ledger implementing the custody and payout
// boundary. The engine's holdings are tracked under the reserved holder name.
type Bank struct {
	mu       sync.Mutex
	balances map[string]map[asset.Info]uint64
}

// EngineHolder is the account name holding custodied funds.
const EngineHolder = "swapflow"

// NewBank constructs an empty bank.
func NewBank() *Bank {
	b := new(Bank)
	b.balances = make(map[string]map[asset.Info]uint64)
	return b
}

// Mint credits a holder with funds, for test setup.
func (b *Bank) Mint(holder string, amount asset.Amount) *Bank {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(holder, amount)
	return b
}

// Custody moves the offered amount from the initiator to the engine account.
func (b *Bank) Custody(_ context.Context, initiator string, amount asset.Amount) error {
	return b.move(initiator, EngineHolder, amount)
}

// Refund returns custodied funds to the initiator unchanged.
func (b *Bank) Refund(_ context.Context, initiator string, amount asset.Amount) error {
	return b.move(EngineHolder, initiator, amount)
}

// Transfer pays the recipient from the engine account.
func (b *Bank) Transfer(_ context.Context, recipient string, amount asset.Amount) error {
	return b.move(EngineHolder, recipient, amount)
}

// Deposit credits the engine account directly, standing in for swap proceeds.
func (b *Bank) Deposit(amount asset.Amount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(EngineHolder, amount)
}

// Balance returns the holder's balance of the asset.
func (b *Bank) Balance(_ context.Context, holder string, info asset.Info) (asset.Amount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return asset.NewAmount(info, b.balances[holder][info]), nil
}

func (b *Bank) move(from, to string, amount asset.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	held := b.balances[from][amount.Asset]
	if held < amount.Quantity {
		return errs.New("venue/fake-bank", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("%s holds %d, cannot move %d %s", from, held, amount.Quantity, amount.Asset)))
	}
	b.balances[from][amount.Asset] = held - amount.Quantity
	b.credit(to, amount)
	return nil
}

func (b *Bank) credit(holder string, amount asset.Amount) {
	if b.balances[holder] == nil {
		b.balances[holder] = make(map[asset.Info]uint64)
	}
	b.balances[holder][amount.Asset] += amount.Quantity
}
