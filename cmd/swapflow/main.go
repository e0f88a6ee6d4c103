// Command swapflow launches the route execution service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/swapflow/config"
	"github.com/coachpo/swapflow/internal/asset"
	"github.com/coachpo/swapflow/internal/engine"
	"github.com/coachpo/swapflow/internal/events"
	"github.com/coachpo/swapflow/internal/fees"
	"github.com/coachpo/swapflow/internal/journal"
	"github.com/coachpo/swapflow/internal/observability"
	httpserver "github.com/coachpo/swapflow/internal/server/http"
	"github.com/coachpo/swapflow/internal/simulate"
	"github.com/coachpo/swapflow/internal/store"
	"github.com/coachpo/swapflow/internal/telemetry"
	"github.com/coachpo/swapflow/internal/venue"
	"github.com/coachpo/swapflow/internal/venue/fake"
	"github.com/coachpo/swapflow/lib/async"
)

const (
	defaultConfigPath        = "config/app.yaml"
	eventBusBuffer = 256
	// A single journal worker keeps writes in emit order: the terminal
	// settle/revert update must not run before the accepted insert.
	journalWorkers           = 1
	journalQueue             = 512
	executeWorkers           = 16
	executeQueue             = 64
	serverShutdownTimeout    = 5 * time.Second
	lifecycleShutdownTimeout = 10 * time.Second
	journalShutdownTimeout   = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPath := parseFlags()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx, cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetLogger(observability.NewZerologLogger(os.Stderr, logLevel(cfg.Environment)))
	logger := observability.Log()
	logger.Info("configuration initialised",
		observability.Field{Key: "environment", Value: string(cfg.Environment)},
		observability.Field{Key: "venues", Value: len(cfg.Venues)})

	telemetryProvider, err := initTelemetry(ctx, cfg)
	if err != nil {
		logger.Error("initialise telemetry", observability.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}

	bank := fake.NewBank()
	venues, err := buildVenues(cfg.Venues, bank)
	if err != nil {
		logger.Error("initialise venues", observability.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
	converter := buildConverter(cfg.Conversions, bank)

	st := store.NewMemory()
	schedule := fees.NewSchedule(st)
	if err := seedFees(ctx, schedule, cfg.Fees, cfg.FeeCollector); err != nil {
		logger.Error("seed fee schedule", observability.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}

	bus := events.NewBus(eventBusBuffer)

	sink, recorder, journalPool, dbPool, err := initJournal(ctx, cfg.Database, bus)
	if err != nil {
		logger.Error("initialise journal", observability.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}

	eng := engine.New(st, venues, converter, bank, engine.WithEvents(sink))
	sim := simulate.New(venues, converter, schedule)

	execPool, err := async.NewPool("execute", executeWorkers, executeQueue)
	if err != nil {
		logger.Error("initialise execution pool", observability.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}

	apiServer := &http.Server{
		Addr:              cfg.Server.Addr,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		Handler: httpserver.NewHandler(cfg.Server, httpserver.Deps{
			Engine:    eng,
			Simulator: sim,
			Fees:      schedule,
			Journal:   recorder,
			Bus:       bus,
			Bank:      bank,
			Exec:      execPool,

			EngineAccount: fake.EngineHolder,
		}),
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server", observability.Field{Key: "error", Value: err.Error()})
			cancel()
		}
	})
	logger.Info("swapflow started", observability.Field{Key: "addr", Value: cfg.Server.Addr})

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	performGracefulShutdown(shutdownCtx, gracefulShutdownConfig{
		server:      apiServer,
		mainCancel:  cancel,
		lifecycle:   &lifecycle,
		bus:         bus,
		execPool:    execPool,
		journalPool: journalPool,
		dbPool:      dbPool,
		telemetry:   telemetryProvider,
	})
	logger.Info("shutdown complete")
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	if *cfgPath != "" {
		return *cfgPath
	}
	return filepath.Clean(defaultConfigPath)
}

func logLevel(env config.Environment) string {
	if env == config.EnvDev {
		return "debug"
	}
	return "info"
}

func initTelemetry(ctx context.Context, cfg config.AppConfig) (*telemetry.Provider, error) {
	provider, err := telemetry.Init(ctx, cfg.Telemetry, string(cfg.Environment))
	if err != nil {
		return nil, err
	}
	if cfg.Telemetry.OTLPEndpoint != "" && cfg.Telemetry.EnableMetrics {
		observability.SetMetrics(telemetry.NewMetrics(provider))
	}
	return provider, nil
}

// buildVenues registers a fixed-rate venue per configured address. Real venue
// adapters would slot in behind the same registry.
func buildVenues(configs []config.VenueConfig, bank *fake.Bank) (*venue.Registry, error) {
	registry := venue.NewRegistry()
	for _, vc := range configs {
		v := fake.NewVenue().BindBank(bank)
		for _, market := range vc.Markets {
			rate, err := decimal.NewFromString(market.Rate)
			if err != nil {
				return nil, fmt.Errorf("venue %s: parse rate %q: %w", vc.Address, market.Rate, err)
			}
			v.SetRate(assetFromRef(market.Offer), assetFromRef(market.Ask), rate)
		}
		if err := registry.Register(vc.Address, v); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func buildConverter(pairs []config.ConversionConfig, bank *fake.Bank) *fake.Converter {
	converter := fake.NewConverter().BindBank(bank)
	for _, pair := range pairs {
		converter.Bridge(assetFromRef(pair.A), assetFromRef(pair.B))
	}
	return converter
}

func assetFromRef(ref config.AssetRef) asset.Info {
	if ref.Contract != "" {
		return asset.Ledger(ref.Contract)
	}
	return asset.Native(ref.Denom)
}

func seedFees(ctx context.Context, schedule *fees.Schedule, configs []config.FeeConfig, collector string) error {
	for _, fc := range configs {
		rate, err := decimal.NewFromString(fc.Rate)
		if err != nil {
			return fmt.Errorf("fee for %s: parse rate %q: %w", fc.Venue, fc.Rate, err)
		}
		if err := schedule.Set(ctx, fc.Venue, rate); err != nil {
			return err
		}
	}
	if collector != "" {
		if err := schedule.SetCollector(ctx, collector); err != nil {
			return err
		}
	}
	return nil
}

// initJournal wires the asynchronous journal sink when a database is
// configured; otherwise events flow straight to the in-process bus.
func initJournal(ctx context.Context, cfg config.DatabaseConfig, bus *events.Bus) (engine.EventSink, *journal.Recorder, *async.Pool, *pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return bus, nil, nil, nil, nil
	}
	if err := journal.Migrate(ctx, cfg.DSN); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	dbPool, err := journal.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}
	workerPool, err := async.NewPool("journal", journalWorkers, journalQueue)
	if err != nil {
		dbPool.Close()
		return nil, nil, nil, nil, err
	}
	recorder := journal.NewRecorder(dbPool)
	return journal.NewSink(recorder, workerPool, bus), recorder, workerPool, dbPool, nil
}

type gracefulShutdownConfig struct {
	server      *http.Server
	mainCancel  context.CancelFunc
	lifecycle   *conc.WaitGroup
	bus         *events.Bus
	execPool    *async.Pool
	journalPool *async.Pool
	dbPool      *pgxpool.Pool
	telemetry   *telemetry.Provider
}

func performGracefulShutdown(ctx context.Context, cfg gracefulShutdownConfig) {
	logger := observability.Log()
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			logger.Error("shutdown step failed",
				observability.Field{Key: "step", Value: name},
				observability.Field{Key: "error", Value: err.Error()})
		}
	}

	if cfg.server != nil {
		shutdownStep("api server", serverShutdownTimeout, cfg.server.Shutdown)
	}
	if cfg.mainCancel != nil {
		cfg.mainCancel()
	}
	if cfg.lifecycle != nil {
		shutdownStep("lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for goroutines: %w", stepCtx.Err())
			}
		})
	}
	if cfg.execPool != nil {
		shutdownStep("execution pool", lifecycleShutdownTimeout, cfg.execPool.Shutdown)
	}
	if cfg.journalPool != nil {
		shutdownStep("journal writer", journalShutdownTimeout, cfg.journalPool.Shutdown)
	}
	if cfg.bus != nil {
		cfg.bus.Close()
	}
	if cfg.dbPool != nil {
		cfg.dbPool.Close()
	}
	if cfg.telemetry != nil {
		shutdownStep("telemetry", telemetryShutdownTimeout, cfg.telemetry.Shutdown)
	}
}
