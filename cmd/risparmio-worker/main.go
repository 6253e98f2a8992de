package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"risparmio/internal/config"
	"risparmio/internal/core"
	"risparmio/internal/events"
	applog "risparmio/internal/log"
	"risparmio/internal/rates"
	"risparmio/internal/services"
	"risparmio/internal/storage"
)

// The worker consumes allocation.changed events and recomputes the current
// month's plans against the shared database. It exists so plan recomputation
// keeps happening when the API process is scaled down or restarting.
func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker)
	applog.SetDefault(logger)

	logger.Info("Starting risparmio-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	var source rates.Source
	if cfg.RateProviderURL != "" {
		source = rates.NewHTTPSource(cfg.RateProviderURL, cfg.RateFetchBound)
	} else {
		source = rates.StaticSource{}
	}
	conv := rates.NewConverter(source, rates.ConverterConfig{
		TTL:        cfg.RateCacheTTL,
		MaxPairs:   256,
		FetchBound: cfg.RateFetchBound,
	})

	// The worker recomputes but never republishes, so its plan service
	// publishes nowhere. Republishing would bounce events between workers.
	plans := services.NewPlanService(store, events.Nop{}, conv, nil)

	client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		err := client.ConsumeAllocationChanged(ctx, func(msg *events.AllocationChanged) error {
			month := core.MonthOf(time.Now())
			logger.Info("Recomputing plans",
				"asset_id", msg.AssetID,
				"goal_ids", msg.GoalIDs,
				"month", month.String())
			return plans.RecomputeMonth(ctx, month)
		})
		if err != nil && err != context.Canceled {
			logger.Error("Event consumption failed", "error", err)
		}
		cancel()
	}()

	// Periodic recompute catches missed messages and month boundaries.
	ticker := time.NewTicker(cfg.RecomputeInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := plans.RecomputeMonth(ctx, core.MonthOf(time.Now())); err != nil {
					logger.Error("Periodic recompute failed", "error", err)
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("Worker shutdown complete")
}
