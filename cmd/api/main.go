// Package main serves the read-only query API over the aggregate store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stele-indexer/internal/api"
	"github.com/stele-indexer/internal/config"
	"github.com/stele-indexer/internal/logging"
	"github.com/stele-indexer/internal/storage"
	"github.com/stele-indexer/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithField("service", "api")
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	var store *storage.Store
	if cfg.Database.Backend == "memory" {
		logger.Warn("Serving from an empty in-memory store")
		store = storage.NewMemoryStore()
	} else {
		db, err := storage.NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			logger.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer db.Close()
		store = storage.NewPostgresStore(db)
		logger.Info("Connected to Postgres")
	}

	var governor common.Address
	if cfg.Contracts.Governor != "" {
		governor = common.HexToAddress(cfg.Contracts.Governor)
	}

	server := api.NewServer(&api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		Governor:          governor,
		Stele:             common.HexToAddress(cfg.Contracts.Stele),
		Checkpoint:        worker.DefaultCheckpoint,
		RequestsPerSecond: cfg.Server.RateLimitRPS,
		Burst:             cfg.Server.RateLimitBurst,
	}, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatalf("API server failed: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server exited")
}
