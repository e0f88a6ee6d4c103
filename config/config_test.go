package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != EnvProd {
		t.Fatalf("environment = %s, want prod", cfg.Environment)
	}
	if cfg.Server.Addr != ":8480" {
		t.Fatalf("addr = %s, want :8480", cfg.Server.Addr)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swapflow.yaml")
	raw := `
environment: dev
server:
  addr: ":9000"
  rateLimitRps: 5
venues:
  - address: amm-usdt
    kind: amm_swap
    markets:
      - offer: {denom: inj}
        ask: {denom: usdt}
        rate: "2"
conversions:
  - a: {denom: usdt}
    b: {contract: cw20usdt}
fees:
  - venue: amm-usdt
    rate: "0.003"
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != EnvDev {
		t.Fatalf("environment = %s, want dev", cfg.Environment)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr = %s, want :9000", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Fatalf("readTimeout = %s, default must survive partial yaml", cfg.Server.ReadTimeout)
	}
	if len(cfg.Venues) != 1 || len(cfg.Venues[0].Markets) != 1 {
		t.Fatalf("venues = %+v, want one venue with one market", cfg.Venues)
	}
	if cfg.Venues[0].Markets[0].Ask.Denom != "usdt" {
		t.Fatalf("ask = %+v, want usdt", cfg.Venues[0].Markets[0].Ask)
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swapflow.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9000\"\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	t.Setenv("SWAPFLOW_LISTEN_ADDR", ":7100")
	t.Setenv("SWAPFLOW_ENV", "staging")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7100" {
		t.Fatalf("addr = %s, want env override :7100", cfg.Server.Addr)
	}
	if cfg.Environment != EnvStaging {
		t.Fatalf("environment = %s, want staging", cfg.Environment)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"unknown environment", func(c *AppConfig) { c.Environment = "qa" }},
		{"empty addr", func(c *AppConfig) { c.Server.Addr = "" }},
		{"zero rate limit", func(c *AppConfig) { c.Server.RateLimitRPS = 0 }},
		{"venue without address", func(c *AppConfig) { c.Venues = []VenueConfig{{}} }},
		{"duplicate venue", func(c *AppConfig) {
			c.Venues = []VenueConfig{{Address: "x"}, {Address: "x"}}
		}},
		{"asset ref both set", func(c *AppConfig) {
			c.Conversions = []ConversionConfig{{A: AssetRef{Denom: "inj", Contract: "cw"}, B: AssetRef{Denom: "usdt"}}}
		}},
		{"fee without rate", func(c *AppConfig) { c.Fees = []FeeConfig{{Venue: "x"}} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
