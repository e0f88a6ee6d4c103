// Package config centralises runtime configuration for swapflow services.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment identifies the runtime environment.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimitRPS    float64       `yaml:"rateLimitRps"`
	RateLimitBurst  int           `yaml:"rateLimitBurst"`
	AdminToken      string        `yaml:"adminToken"`
}

// DatabaseConfig configures the execution journal store.
type DatabaseConfig struct {
	DSN            string        `yaml:"dsn"`
	MaxConns       int32         `yaml:"maxConns"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// VenueConfig declares one swap venue and its tradable markets.
type VenueConfig struct {
	Address string         `yaml:"address"`
	Kind    string         `yaml:"kind"`
	Markets []MarketConfig `yaml:"markets"`
}

// MarketConfig declares one (offer, ask) pair and its synthetic rate, used by
// the built-in fixed-rate venues in dev environments.
type MarketConfig struct {
	Offer AssetRef `yaml:"offer"`
	Ask   AssetRef `yaml:"ask"`
	Rate  string   `yaml:"rate"`
}

// AssetRef names an asset in configuration: exactly one of denom (native) or
// contract (ledger) is set.
type AssetRef struct {
	Denom    string `yaml:"denom,omitempty"`
	Contract string `yaml:"contract,omitempty"`
}

// Validate checks that the reference names exactly one representation.
func (r AssetRef) Validate() error {
	if (r.Denom == "") == (r.Contract == "") {
		return fmt.Errorf("asset ref requires exactly one of denom or contract, got denom=%q contract=%q", r.Denom, r.Contract)
	}
	return nil
}

// ConversionConfig declares one bidirectional representation bridge.
type ConversionConfig struct {
	A AssetRef `yaml:"a"`
	B AssetRef `yaml:"b"`
}

// FeeConfig seeds the per-venue fee schedule.
type FeeConfig struct {
	Venue string `yaml:"venue"`
	Rate  string `yaml:"rate"`
}

// AppConfig is the unified application configuration tree.
type AppConfig struct {
	Environment Environment        `yaml:"environment"`
	Server      ServerConfig       `yaml:"server"`
	Database    DatabaseConfig     `yaml:"database"`
	Telemetry   TelemetryConfig    `yaml:"telemetry"`
	Venues      []VenueConfig      `yaml:"venues"`
	Conversions []ConversionConfig `yaml:"conversions"`
	Fees        []FeeConfig        `yaml:"fees"`
	// FeeCollector is the address fee proceeds accrue to; empty leaves the
	// collector unset until an admin configures one.
	FeeCollector string `yaml:"feeCollector"`
}

// Default returns the built-in configuration.
func Default() AppConfig {
	return AppConfig{
		Environment: EnvProd,
		Server: ServerConfig{
			Addr:            ":8480",
			ReadTimeout:     10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    50,
			RateLimitBurst:  100,
		},
		Database: DatabaseConfig{
			MaxConns:       8,
			ConnectTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:   "swapflow",
			EnableMetrics: true,
		},
	}
}

// Load builds configuration with precedence: defaults, then the YAML file at
// configPath if it exists, then environment variables. A missing file is not
// an error; a malformed one is.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	if err := ctx.Err(); err != nil {
		return AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	cfg := Default()
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// defaults + env only
		case err != nil:
			return AppConfig{}, fmt.Errorf("read config %s: %w", configPath, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return AppConfig{}, fmt.Errorf("parse config %s: %w", configPath, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("SWAPFLOW_ENV")); v != "" {
		c.Environment = Environment(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("SWAPFLOW_LISTEN_ADDR")); v != "" {
		c.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("SWAPFLOW_ADMIN_TOKEN")); v != "" {
		c.Server.AdminToken = v
	}
	if v := strings.TrimSpace(os.Getenv("SWAPFLOW_RATE_LIMIT_RPS")); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil && rps > 0 {
			c.Server.RateLimitRPS = rps
		}
	}
	if v := strings.TrimSpace(os.Getenv("SWAPFLOW_DB_DSN")); v != "" {
		c.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("SWAPFLOW_DB_CONNECT_TIMEOUT")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			c.Database.ConnectTimeout = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("SWAPFLOW_OTLP_ENDPOINT")); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("SWAPFLOW_SERVICE_NAME")); v != "" {
		c.Telemetry.ServiceName = v
	}
}

// Validate rejects configurations the services cannot start with.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.Server.Addr == "" {
		return errors.New("server addr required")
	}
	if c.Server.RateLimitRPS <= 0 {
		return errors.New("rate limit rps must be positive")
	}
	seen := make(map[string]struct{}, len(c.Venues))
	for _, v := range c.Venues {
		if v.Address == "" {
			return errors.New("venue address required")
		}
		if _, dup := seen[v.Address]; dup {
			return fmt.Errorf("duplicate venue address %q", v.Address)
		}
		seen[v.Address] = struct{}{}
		for _, m := range v.Markets {
			if err := m.Offer.Validate(); err != nil {
				return fmt.Errorf("venue %s: %w", v.Address, err)
			}
			if err := m.Ask.Validate(); err != nil {
				return fmt.Errorf("venue %s: %w", v.Address, err)
			}
			if m.Rate == "" {
				return fmt.Errorf("venue %s: market rate required", v.Address)
			}
		}
	}
	for _, pair := range c.Conversions {
		if err := pair.A.Validate(); err != nil {
			return fmt.Errorf("conversion: %w", err)
		}
		if err := pair.B.Validate(); err != nil {
			return fmt.Errorf("conversion: %w", err)
		}
	}
	for _, fee := range c.Fees {
		if fee.Venue == "" || fee.Rate == "" {
			return errors.New("fee entries require venue and rate")
		}
	}
	return nil
}
