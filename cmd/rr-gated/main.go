package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haukened/rr-gate/internal/gate/common/clock"
	"github.com/haukened/rr-gate/internal/gate/common/log"
	"github.com/haukened/rr-gate/internal/gate/config"
	"github.com/haukened/rr-gate/internal/gate/events"
	"github.com/haukened/rr-gate/internal/gate/gateways/accesspoint"
	"github.com/haukened/rr-gate/internal/gate/gateways/neighbors"
	"github.com/haukened/rr-gate/internal/gate/gateways/proxy"
	"github.com/haukened/rr-gate/internal/gate/repos/registry"
	"github.com/haukened/rr-gate/internal/gate/repos/rules"
	"github.com/haukened/rr-gate/internal/gate/repos/rules/bloom"
	"github.com/haukened/rr-gate/internal/gate/repos/rules/bolt"
	"github.com/haukened/rr-gate/internal/gate/repos/rules/lru"
	"github.com/haukened/rr-gate/internal/gate/services/engine"
	"github.com/haukened/rr-gate/internal/gate/services/presence"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-gated"

	// Target false-positive rate for the blocked-domain Bloom prefilter.
	bloomFPRate = 0.01
)

// Application holds all the components of the gateway daemon.
type Application struct {
	config   *config.AppConfig
	bus      *events.Bus
	rules    *rules.Repository
	registry *registry.Registry
	presence *presence.Service
	proxy    *proxy.Proxy
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.LogLevel,
		"proxy_addr": cfg.ProxyAddr,
		"cache_size": cfg.CacheSize,
		"rule_db":    cfg.RuleDB,
		"refresh":    cfg.RefreshSeconds,
	}, "Starting rr-gate daemon")

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Gateway failed")
	}

	log.Info(nil, "rr-gate daemon stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	// Shared clock for consistent time across all components
	clk := clock.RealClock{}

	logger := log.GetLogger()

	// Event fan-out to dashboard/log observers
	bus := events.NewBus()

	// Persisted rule configuration. An unopenable database degrades to an
	// in-memory store so the gateway still filters with defaults.
	store, err := bolt.New(cfg.RuleDB)
	if err != nil {
		log.Warn(map[string]any{
			"rule_db": cfg.RuleDB,
			"error":   err.Error(),
		}, "Rule database unavailable, running without persistence")
		store = rules.NopStore{}
	}

	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	ruleRepo := rules.NewRepository(rules.Options{
		Store:   store,
		Cache:   cache,
		Factory: bloom.NewFactory(),
		FPRate:  bloomFPRate,
		Clock:   clk,
		Logger:  logger,
		Events:  bus,
	})

	// Device presence
	deviceRegistry := registry.New(clk)

	provider, err := neighbors.New(cfg.NeighborCommand, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot provider: %w", err)
	}

	ap := accesspoint.New(cfg.APInterface, logger)

	presenceService := presence.New(presence.Options{
		Provider: provider,
		Registry: deviceRegistry,
		AP:       ap,
		Events:   bus,
		Clock:    clk,
		Logger:   logger,
		Refresh:  cfg.RefreshInterval(),
		Backoff:  cfg.BackoffInterval(),
	})

	// Decision engine
	decisionEngine, err := engine.New(engine.Options{
		Rules:          ruleRepo,
		Logger:         logger,
		RegexCacheSize: cfg.RegexCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decision engine: %w", err)
	}

	// Interception proxy
	interceptionProxy := proxy.New(proxy.Options{
		Addr:          cfg.ProxyAddr,
		MaxConns:      cfg.MaxConns,
		OriginTimeout: cfg.OriginTimeout(),
		DrainTimeout:  cfg.DrainTimeout(),
		Decider:       decisionEngine,
		Devices:       deviceRegistry,
		Events:        bus,
		Clock:         clk,
		Logger:        logger,
	})

	return &Application{
		config:   cfg,
		bus:      bus,
		rules:    ruleRepo,
		registry: deviceRegistry,
		presence: presenceService,
		proxy:    interceptionProxy,
	}, nil
}

// Run starts the gateway and blocks until the context is cancelled.
func (app *Application) Run(ctx context.Context) error {
	if err := app.proxy.Start(ctx); err != nil {
		return fmt.Errorf("failed to start proxy: %w", err)
	}

	if err := app.presence.Start(ctx); err != nil {
		_ = app.proxy.Stop()
		return fmt.Errorf("failed to start presence monitoring: %w", err)
	}

	log.Info(map[string]any{
		"proxy":   app.proxy.Address(),
		"refresh": app.config.RefreshSeconds,
	}, "Gateway running")

	<-ctx.Done()

	log.Info(nil, "Shutdown initiated")

	// Stop order: no new snapshots, then drain the proxy, then release the
	// rule store and observers.
	app.presence.Stop()

	if err := app.proxy.Stop(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during proxy shutdown")
	}

	if err := app.rules.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error closing rule store")
	}
	app.bus.Close()

	return nil
}
