package main

import (
	"context"
	"testing"

	"github.com/coachpo/swapflow/config"
	"github.com/coachpo/swapflow/internal/asset"
	"github.com/coachpo/swapflow/internal/fees"
	"github.com/coachpo/swapflow/internal/store"
	"github.com/coachpo/swapflow/internal/venue/fake"
)

func TestAssetFromRef(t *testing.T) {
	if got := assetFromRef(config.AssetRef{Denom: "inj"}); got != asset.Native("inj") {
		t.Fatalf("denom ref = %v, want native inj", got)
	}
	if got := assetFromRef(config.AssetRef{Contract: "cw20abc"}); got != asset.Ledger("cw20abc") {
		t.Fatalf("contract ref = %v, want ledger cw20abc", got)
	}
}

func TestBuildVenues(t *testing.T) {
	bank := fake.NewBank()
	registry, err := buildVenues([]config.VenueConfig{{
		Address: "injdex",
		Kind:    "amm",
		Markets: []config.MarketConfig{{
			Offer: config.AssetRef{Denom: "inj"},
			Ask:   config.AssetRef{Denom: "usdt"},
			Rate:  "2",
		}},
	}}, bank)
	if err != nil {
		t.Fatalf("buildVenues: %v", err)
	}
	if _, err := registry.Resolve("injdex"); err != nil {
		t.Fatalf("resolve injdex: %v", err)
	}
}

func TestBuildVenuesRejectsBadRate(t *testing.T) {
	_, err := buildVenues([]config.VenueConfig{{
		Address: "injdex",
		Markets: []config.MarketConfig{{
			Offer: config.AssetRef{Denom: "inj"},
			Ask:   config.AssetRef{Denom: "usdt"},
			Rate:  "not-a-number",
		}},
	}}, fake.NewBank())
	if err == nil {
		t.Fatal("expected error for malformed rate")
	}
}

func TestSeedFees(t *testing.T) {
	schedule := fees.NewSchedule(store.NewMemory())
	err := seedFees(context.Background(), schedule, []config.FeeConfig{{Venue: "injdex", Rate: "0.003"}}, "inj1treasury")
	if err != nil {
		t.Fatalf("seedFees: %v", err)
	}
	rate, found, err := schedule.Rate(context.Background(), "injdex")
	if err != nil || !found {
		t.Fatalf("rate lookup: found=%v err=%v", found, err)
	}
	if rate.String() != "0.003" {
		t.Fatalf("rate = %s, want 0.003", rate)
	}
	collector, found, err := schedule.Collector(context.Background())
	if err != nil || !found {
		t.Fatalf("collector lookup: found=%v err=%v", found, err)
	}
	if collector != "inj1treasury" {
		t.Fatalf("collector = %q, want inj1treasury", collector)
	}
}

func TestLogLevel(t *testing.T) {
	if got := logLevel(config.EnvDev); got != "debug" {
		t.Fatalf("dev level = %q, want debug", got)
	}
	if got := logLevel(config.EnvProd); got != "info" {
		t.Fatalf("prod level = %q, want info", got)
	}
}
