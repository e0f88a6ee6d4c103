// Package fees maintains the per-venue fee schedule used by route simulation
// and exposed through the admin surface.
package fees

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/store"
)

const (
	feeKeyPrefix = "fee/"
	collectorKey = "fee_collector"

	defaultListLimit = 50
	maxListLimit     = 500
)

// VenueFee pairs a venue address with its fee rate.
type VenueFee struct {
	Venue string          `json:"venue"`
	Rate  decimal.Decimal `json:"rate"`
}

// Schedule is the persisted fee table. Rates are fractions in [0, 1): 0.003
// means thirty basis points are deducted from a quoted output.
type Schedule struct {
	store store.Store
}

// NewSchedule wraps the store.
func NewSchedule(st store.Store) *Schedule {
	s := new(Schedule)
	s.store = st
	return s
}

// Set installs or replaces the fee rate for a venue.
func (s *Schedule) Set(ctx context.Context, venue string, rate decimal.Decimal) error {
	if venue == "" {
		return errs.New("fees/schedule", errs.CodeInvalid, errs.WithMessage("venue address required"))
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errs.New("fees/schedule", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("fee rate %s out of range [0, 1)", rate)))
	}
	return s.store.Update(ctx, func(kv store.KV) error {
		kv.Set(feeKeyPrefix+venue, []byte(rate.String()))
		return nil
	})
}

// Remove deletes the venue's fee entry. Removing an absent entry fails with a
// not-found error so admin typos surface.
func (s *Schedule) Remove(ctx context.Context, venue string) error {
	return s.store.Update(ctx, func(kv store.KV) error {
		if _, ok := kv.Get(feeKeyPrefix + venue); !ok {
			return errs.New("fees/schedule", errs.CodeNotFound,
				errs.WithMessage(fmt.Sprintf("no fee configured for venue %s", venue)))
		}
		kv.Delete(feeKeyPrefix + venue)
		return nil
	})
}

// Rate returns the venue's fee rate; the second return is false when no fee is
// configured (treated as zero fee by callers).
func (s *Schedule) Rate(ctx context.Context, venue string) (decimal.Decimal, bool, error) {
	var raw []byte
	var found bool
	err := s.store.View(ctx, func(kv store.KV) error {
		raw, found = kv.Get(feeKeyPrefix + venue)
		return nil
	})
	if err != nil {
		return decimal.Zero, false, err
	}
	if !found {
		return decimal.Zero, false, nil
	}
	rate, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("decode fee for %s: %w", venue, err)
	}
	return rate, true, nil
}

// List returns a page of configured fees ordered by venue address. A
// non-positive limit falls back to the default page size.
func (s *Schedule) List(ctx context.Context, limit, offset int) ([]VenueFee, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	var out []VenueFee
	var decodeErr error
	skipped := 0
	err := s.store.View(ctx, func(kv store.KV) error {
		kv.Scan(feeKeyPrefix, func(key string, value []byte) bool {
			if skipped < offset {
				skipped++
				return true
			}
			if len(out) >= limit {
				return false
			}
			rate, err := decimal.NewFromString(string(value))
			if err != nil {
				decodeErr = fmt.Errorf("decode fee %s: %w", key, err)
				return false
			}
			out = append(out, VenueFee{Venue: key[len(feeKeyPrefix):], Rate: rate})
			return true
		})
		return decodeErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetCollector records the address fee proceeds accrue to.
func (s *Schedule) SetCollector(ctx context.Context, address string) error {
	if address == "" {
		return errs.New("fees/schedule", errs.CodeInvalid, errs.WithMessage("collector address required"))
	}
	return s.store.Update(ctx, func(kv store.KV) error {
		kv.Set(collectorKey, []byte(address))
		return nil
	})
}

// Collector returns the configured fee collector; found is false when none is
// set.
func (s *Schedule) Collector(ctx context.Context) (string, bool, error) {
	var raw []byte
	var found bool
	err := s.store.View(ctx, func(kv store.KV) error {
		raw, found = kv.Get(collectorKey)
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return string(raw), found, nil
}

// Apply deducts the fee from a quoted output quantity, rounding the kept
// amount down.
func Apply(quantity uint64, rate decimal.Decimal) uint64 {
	if rate.IsZero() {
		return quantity
	}
	kept := decimal.NewFromUint64(quantity).Mul(decimal.NewFromInt(1).Sub(rate)).Floor()
	if kept.IsNegative() {
		return 0
	}
	return kept.BigInt().Uint64()
}
