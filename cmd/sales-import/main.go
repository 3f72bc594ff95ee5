package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/NikhilTanwar48/backend-global-sales/internal/amqp"
	"github.com/NikhilTanwar48/backend-global-sales/internal/config"
	"github.com/NikhilTanwar48/backend-global-sales/internal/ingest"
	applog "github.com/NikhilTanwar48/backend-global-sales/internal/log"
	"github.com/NikhilTanwar48/backend-global-sales/internal/storage"
)

// sales-import cleans a raw CSV export and replaces the stored dataset.
// When AMQP is configured it also announces the refresh so running servers
// purge their caches.
func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentIngest)
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	csvPath := flag.String("csv", cfg.DatasetCSVPath, "path to the raw sales CSV export")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	orders, err := ingest.LoadAndClean(*csvPath)
	if err != nil {
		logger.Error("Failed to clean dataset", "error", err, "path", *csvPath)
		os.Exit(1)
	}
	logger.Info("Dataset cleaned", "rows", len(orders), "path", *csvPath)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open storage", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.ReplaceOrders(ctx, orders); err != nil {
		logger.Error("Failed to store dataset", "error", err)
		os.Exit(1)
	}
	logger.Info("Dataset imported", "rows", len(orders), "db", cfg.SQLiteDBPath)

	// Refresh announcement is best effort: the import already succeeded and
	// servers fall back to cache TTL expiry.
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, skipping refresh announcement", "error", err)
			return
		}
		defer client.Close()

		if err := client.PublishDatasetRefresh(ctx, int64(len(orders)), *csvPath); err != nil {
			logger.Warn("Failed to announce dataset refresh", "error", err)
			return
		}
		logger.Info("Dataset refresh announced", "rows", len(orders))
	}
}
