package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"risparmio/internal/cache"
	"risparmio/internal/chain"
	"risparmio/internal/config"
	"risparmio/internal/events"
	apphttp "risparmio/internal/http"
	applog "risparmio/internal/log"
	"risparmio/internal/rates"
	"risparmio/internal/services"
	"risparmio/internal/storage"
	"risparmio/internal/storage/memory"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Storage backend
	var store storage.Store
	switch cfg.StoreBackend {
	case "memory":
		store = memory.New()
		logger.Info("Initialized memory store", "backend", cfg.StoreBackend)
	default:
		sqliteStore, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite store", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		store = sqliteStore
		logger.Info("Initialized SQLite store", "path", cfg.SQLiteDBPath)
	}

	// Currency conversion with TTL cache and periodic cleanup
	var source rates.Source
	if cfg.RateProviderURL != "" {
		source = rates.NewHTTPSource(cfg.RateProviderURL, cfg.RateFetchBound)
		logger.Info("Rate provider configured", "url", cfg.RateProviderURL)
	} else {
		source = rates.StaticSource{}
		logger.Info("No rate provider configured, only same-currency conversion available")
	}
	conv := rates.NewConverter(source, rates.ConverterConfig{
		TTL:        cfg.RateCacheTTL,
		MaxPairs:   256,
		FetchBound: cfg.RateFetchBound,
	})

	cacheManager := cache.NewManager()
	cacheManager.Register(conv.Cache())
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	// Event bus (optional)
	var bus events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		bus = client
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled, events are discarded")
	}

	// On-chain balance provider (optional)
	var balances chain.Provider
	if cfg.BalanceProviderURL != "" {
		balances = chain.NewHTTPProvider(cfg.BalanceProviderURL, 10*time.Second)
		logger.Info("Balance provider configured", "url", cfg.BalanceProviderURL)
	}

	// Engine services
	plans := services.NewPlanService(store, bus, conv, nil)
	recalc := services.NewRecalculator(plans, services.RecalculatorConfig{
		Interval: cfg.RecomputeInterval,
	}, nil)
	tracker := services.NewExecutionTracker(store, bus, conv, cfg.UndoWindow, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := recalc.Start(ctx); err != nil {
		logger.Error("Failed to start recalculator", "error", err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Goals:         services.NewGoalService(store, recalc, nil),
		Assets:        services.NewAssetService(store, balances, recalc, nil),
		Ledger:        services.NewAllocationLedger(store, bus, recalc, nil),
		Plans:         plans,
		Flex:          services.NewFlexEngine(store, nil),
		Budget:        services.NewBudgetCalculator(store, conv, nil),
		Tracker:       tracker,
		Contributions: services.NewContributionService(store, tracker, nil),
		Converter:     conv,
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := recalc.Stop(shutdownCtx); err != nil {
			logger.Error("Recalculator shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting risparmio server", "port", cfg.Port, "backend", cfg.StoreBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
