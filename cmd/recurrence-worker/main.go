package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tally/internal/amqp"
	"tally/internal/config"
	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/services"
	"tally/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: "recurrence-worker"})
	log.SetDefault(logger)

	logger.Info("Starting recurrence-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer sqliteRepo.Close()

	// AMQP publishes instance sync messages for the mirror worker. Optional:
	// without it the worker runs in SQLite-only mode.
	var publisher services.SyncPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing in SQLite-only mode", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized - instances will sync via mirror-worker")
		}
	} else {
		logger.Info("AMQP disabled - instances will not be mirrored")
	}

	generator := services.NewGenerator(sqliteRepo, sqliteRepo, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Recurring generation configured",
		"interval", cfg.GenerationInterval,
		"horizon_months", cfg.HorizonMonths,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(cfg.GenerationInterval)
	defer ticker.Stop()

	// Run initial generation on startup
	logger.Info("Running initial generation pass...")
	runOnce(ctx, logger, generator, cfg.HorizonMonths, time.Now())

	// Start periodic generation
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				logger.Info("Running periodic generation pass...")
				runOnce(ctx, logger, generator, cfg.HorizonMonths, now)
			}
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down recurrence-worker...")
	cancel()

	// Give the in-flight pass a moment to finish
	time.Sleep(2 * time.Second)
	logger.Info("Recurrence-worker shutdown complete")
}

func runOnce(ctx context.Context, logger *log.Logger, generator *services.Generator, horizonMonths int, now time.Time) {
	summary, err := generator.RunGeneration(ctx, core.DateOf(now), horizonMonths)
	if err != nil {
		logger.Error("Generation pass failed", "error", err)
		return
	}
	logger.Info("Generation pass complete",
		"as_of", summary.AsOf.String(),
		"templates_processed", summary.TemplatesProcessed,
		"instances_generated", summary.InstancesGenerated,
		"templates_skipped", summary.TemplatesSkipped)
}
