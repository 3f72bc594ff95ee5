package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/NikhilTanwar48/backend-global-sales/internal/amqp"
	"github.com/NikhilTanwar48/backend-global-sales/internal/cache"
	"github.com/NikhilTanwar48/backend-global-sales/internal/config"
	apphttp "github.com/NikhilTanwar48/backend-global-sales/internal/http"
	applog "github.com/NikhilTanwar48/backend-global-sales/internal/log"
	"github.com/NikhilTanwar48/backend-global-sales/internal/storage"
	"github.com/NikhilTanwar48/backend-global-sales/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open storage", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	caches := cache.NewManager()
	caches.StartCleanup(cfg.CacheCleanupInterval)
	defer caches.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, repo, apphttp.Options{
		FrontendOrigin: cfg.FrontendOrigin,
		DatasetCSVPath: cfg.DatasetCSVPath,
		CacheSize:      cfg.CacheSize,
		CacheTTL:       cfg.CacheTTL,
		Caches:         caches,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting sales API server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Dataset refresh consumer: importers announce replaced datasets over
	// AMQP and the server drops its aggregation caches in response.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without refresh messages", "error", err)
		} else {
			defer amqpClient.Close()
			refresh := worker.NewRefreshWorker(repo, caches)
			g.Go(func() error {
				return amqpClient.ConsumeDatasetRefresh(ctx, refresh.HandleRefreshMessage)
			})
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
