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
	"tally/internal/log"
	"tally/internal/sheets"
	gsheet "tally/internal/sheets/google"
	"tally/internal/sheets/memory"
	"tally/internal/storage"
	"tally/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: "mirror-worker"})
	log.SetDefault(logger)

	logger.Info("Starting mirror-worker")

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

	// Ledger mirror target: Google Sheets when configured, in-memory otherwise.
	var mirror sheets.InstanceWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mirror = memory.New()
		logger.Info("Google Sheets disabled - mirroring to memory only")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mirrorWorker := worker.NewMirrorWorker(sqliteRepo, mirror, cfg.MirrorBatchSize)

	// On startup, mirror any pending instances that might have been missed
	logger.Info("Performing startup sync check...")
	if err := mirrorWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
		// Don't exit - continue with normal operation
	}

	// Consume sync messages published by the recurrence worker
	go func() {
		err := amqpClient.ConsumeInstanceSync(ctx, func(msg *amqp.InstanceSyncMessage) error {
			return mirrorWorker.HandleSyncMessage(ctx, msg)
		})
		if err != nil && err != context.Canceled {
			logger.Error("Message consumption failed", "error", err)
		}
		cancel()
	}()

	// Periodic sweep for any missed messages
	ticker := time.NewTicker(cfg.MirrorInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := mirrorWorker.ProcessPendingInstances(ctx); err != nil {
					logger.Error("Periodic sync failed", "error", err)
				}
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

	logger.Info("Shutting down mirror-worker...")
	cancel()

	// Give in-flight handlers a moment to finish
	time.Sleep(2 * time.Second)
	logger.Info("Mirror-worker shutdown complete")
}
