package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hireloop/tokenpay/internal/balance"
	"github.com/hireloop/tokenpay/internal/circuitbreaker"
	"github.com/hireloop/tokenpay/internal/config"
	"github.com/hireloop/tokenpay/internal/httpserver"
	"github.com/hireloop/tokenpay/internal/lifecycle"
	"github.com/hireloop/tokenpay/internal/logger"
	"github.com/hireloop/tokenpay/internal/metrics"
	"github.com/hireloop/tokenpay/internal/probe"
	stripesvc "github.com/hireloop/tokenpay/internal/stripe"
)

const version = "1.2.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tokenpay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Missing .env is fine; everything can come from real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "tokenpay",
		Version:     version,
		Environment: cfg.Logging.Environment,
	})

	resources := lifecycle.NewManager()
	defer func() {
		if err := resources.Close(); err != nil {
			appLogger.Error().Err(err).Msg("shutdown.resource_close_failed")
		}
	}()

	metricsCollector := metrics.New(prometheus.DefaultRegisterer)
	breaker := circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)

	store, err := newBalanceStore(cfg.Balance)
	if err != nil {
		return fmt.Errorf("init balance store: %w", err)
	}
	resources.Register("balance-store", store)
	if cfg.Balance.Backend == "" || cfg.Balance.Backend == "memory" {
		appLogger.Warn().Msg("using in-memory balance store, credits will not survive restarts")
	}

	connectivity := probe.New(cfg.Probe.Origin, cfg.Probe.Timeout.Duration, appLogger, metricsCollector)
	connectivity.Start(cfg.Probe.Interval.Duration)
	resources.Register("connectivity-probe", connectivity)

	stripeClient := stripesvc.NewClient(cfg.Stripe, breaker, metricsCollector)

	server := httpserver.New(cfg, stripeClient, store, breaker, metricsCollector, appLogger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case sig := <-sigCh:
		appLogger.Info().Str("signal", sig.String()).Msg("shutdown.signal_received")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	appLogger.Info().Msg("shutdown.complete")
	return nil
}

func newBalanceStore(cfg config.BalanceConfig) (balance.Store, error) {
	switch cfg.Backend {
	case "postgres":
		store, err := balance.NewPostgresStore(cfg.PostgresURL, cfg.PostgresPool)
		if err != nil {
			return nil, err
		}
		return store.WithTableName(cfg.TableName), nil
	case "mongodb":
		return balance.NewMongoDBStore(cfg.MongoDBURL, cfg.MongoDBDatabase, cfg.TableName)
	case "", "memory":
		return balance.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown balance backend %q", cfg.Backend)
	}
}
