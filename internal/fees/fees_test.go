package fees

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/coachpo/swapflow/errs"
	"github.com/coachpo/swapflow/internal/store"
)

func TestScheduleSetGetRemove(t *testing.T) {
	s := NewSchedule(store.NewMemory())
	ctx := context.Background()

	if err := s.Set(ctx, "amm-usdt", decimal.RequireFromString("0.003")); err != nil {
		t.Fatalf("set: %v", err)
	}
	rate, found, err := s.Rate(ctx, "amm-usdt")
	if err != nil || !found {
		t.Fatalf("rate: found=%v err=%v", found, err)
	}
	if !rate.Equal(decimal.RequireFromString("0.003")) {
		t.Fatalf("rate = %s, want 0.003", rate)
	}

	if _, found, _ := s.Rate(ctx, "unknown"); found {
		t.Fatal("unknown venue must report no fee")
	}

	if err := s.Remove(ctx, "amm-usdt"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, "amm-usdt"); errs.CodeOf(err) != errs.CodeNotFound {
		t.Fatalf("second remove err = %v, want not_found", err)
	}
}

func TestScheduleRejectsBadRates(t *testing.T) {
	s := NewSchedule(store.NewMemory())
	ctx := context.Background()

	for _, raw := range []string{"-0.01", "1", "1.5"} {
		if err := s.Set(ctx, "amm-usdt", decimal.RequireFromString(raw)); errs.CodeOf(err) != errs.CodeInvalid {
			t.Fatalf("rate %s: err = %v, want invalid", raw, err)
		}
	}
	if err := s.Set(ctx, "", decimal.Zero); errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("empty venue err = %v, want invalid", err)
	}
}

func TestScheduleListOrdered(t *testing.T) {
	s := NewSchedule(store.NewMemory())
	ctx := context.Background()
	for _, venue := range []string{"orderbook-inj", "amm-usdt", "amm-atom"} {
		if err := s.Set(ctx, venue, decimal.RequireFromString("0.001")); err != nil {
			t.Fatalf("set %s: %v", venue, err)
		}
	}
	list, err := s.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"amm-atom", "amm-usdt", "orderbook-inj"}
	if len(list) != len(want) {
		t.Fatalf("list = %+v, want %d entries", list, len(want))
	}
	for i, fee := range list {
		if fee.Venue != want[i] {
			t.Fatalf("list[%d] = %s, want %s", i, fee.Venue, want[i])
		}
	}
}

func TestScheduleListPaginates(t *testing.T) {
	s := NewSchedule(store.NewMemory())
	ctx := context.Background()
	for _, venue := range []string{"amm-atom", "amm-usdt", "orderbook-inj", "orderbook-usdt"} {
		if err := s.Set(ctx, venue, decimal.RequireFromString("0.002")); err != nil {
			t.Fatalf("set %s: %v", venue, err)
		}
	}

	page, err := s.List(ctx, 2, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].Venue != "amm-usdt" || page[1].Venue != "orderbook-inj" {
		t.Fatalf("page = %+v, want [amm-usdt orderbook-inj]", page)
	}

	tail, err := s.List(ctx, 10, 3)
	if err != nil {
		t.Fatalf("list tail: %v", err)
	}
	if len(tail) != 1 || tail[0].Venue != "orderbook-usdt" {
		t.Fatalf("tail = %+v, want [orderbook-usdt]", tail)
	}

	if beyond, err := s.List(ctx, 5, 100); err != nil || len(beyond) != 0 {
		t.Fatalf("offset past end = %+v err=%v, want empty", beyond, err)
	}
}

func TestScheduleCollector(t *testing.T) {
	s := NewSchedule(store.NewMemory())
	ctx := context.Background()

	if _, found, err := s.Collector(ctx); err != nil || found {
		t.Fatalf("fresh collector: found=%v err=%v, want unset", found, err)
	}
	if err := s.SetCollector(ctx, ""); errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("empty collector err = %v, want invalid", err)
	}
	if err := s.SetCollector(ctx, "inj1treasury"); err != nil {
		t.Fatalf("set collector: %v", err)
	}
	collector, found, err := s.Collector(ctx)
	if err != nil || !found || collector != "inj1treasury" {
		t.Fatalf("collector = %q found=%v err=%v, want inj1treasury", collector, found, err)
	}

	// The collector record must never leak into the per-venue schedule.
	if err := s.Set(ctx, "amm-usdt", decimal.RequireFromString("0.003")); err != nil {
		t.Fatalf("set: %v", err)
	}
	list, err := s.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Venue != "amm-usdt" {
		t.Fatalf("list = %+v, want only amm-usdt", list)
	}
}

func TestApply(t *testing.T) {
	cases := []struct {
		quantity uint64
		rate     string
		want     uint64
	}{
		{1000, "0", 1000},
		{1000, "0.003", 997},
		{1, "0.5", 0},
		{999, "0.001", 998},
	}
	for _, tc := range cases {
		if got := Apply(tc.quantity, decimal.RequireFromString(tc.rate)); got != tc.want {
			t.Fatalf("Apply(%d, %s) = %d, want %d", tc.quantity, tc.rate, got, tc.want)
		}
	}
}
