// Package main provides the indexer entry point: it polls governor and stele
// logs and folds them into the aggregate store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stele-indexer/internal/adapter"
	"github.com/stele-indexer/internal/config"
	"github.com/stele-indexer/internal/events"
	"github.com/stele-indexer/internal/logging"
	"github.com/stele-indexer/internal/notify"
	"github.com/stele-indexer/internal/pricing"
	"github.com/stele-indexer/internal/service"
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
	logger := logging.GetGlobalLogger().WithField("service", "indexer")
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Indexer stopped: %v", err)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	eventLog, err := openEventLog(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := eventLog.Close(flushCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush raw event log")
		}
	}()

	deduper, closeDeduper, err := openDeduper(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDeduper()

	publisher, err := openPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	pool, err := adapter.NewRPCPool(&adapter.RPCPoolConfig{
		Endpoints:    cfg.Chain.Endpoints(),
		CooldownTime: 60 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create RPC pool: %w", err)
	}
	steleAddr := common.HexToAddress(cfg.Contracts.Stele)
	eth, err := adapter.NewEthereumAdapter(&adapter.EthereumAdapterConfig{
		Pool:              pool,
		SteleAddress:      steleAddr,
		FactoryAddress:    common.HexToAddress(cfg.Contracts.UniswapV3Factory),
		RequestsPerSecond: cfg.Chain.RPCRateLimit,
		Timeout:           cfg.Chain.RPCTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create ethereum adapter: %w", err)
	}
	defer eth.Close()

	reader := adapter.NewCachedReader(eth)
	resolver := pricing.NewResolver(reader, pricing.Config{
		WETH:     common.HexToAddress(cfg.Contracts.WETH),
		USDC:     common.HexToAddress(cfg.Contracts.USDC),
		FeeTiers: cfg.Contracts.FeeTiers,
	})
	defer resolver.Stop()

	var governorAddr common.Address
	if cfg.Contracts.Governor != "" {
		governorAddr = common.HexToAddress(cfg.Contracts.Governor)
	} else {
		logger.Warn("GOVERNOR_ADDRESS not set, governance events are not indexed")
	}

	engine, err := service.NewEngine(service.EngineConfig{
		Store:         store,
		EventLog:      eventLog,
		Deduper:       deduper,
		Reader:        reader,
		Prices:        resolver,
		Publisher:     publisher,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		Governor:      governorAddr,
		Stele:         steleAddr,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	decoder, err := events.NewDecoder()
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	syncWorker, err := worker.NewSyncWorker(&worker.SyncWorkerConfig{
		Source:        eth,
		Decoder:       decoder,
		Processor:     engine,
		Checkpoints:   store,
		Logger:        logger,
		Addresses:     []common.Address{governorAddr, steleAddr},
		PollInterval:  cfg.Chain.PollInterval,
		MaxBlocks:     cfg.Chain.MaxBlocksPerPoll,
		Confirmations: cfg.Chain.Confirmations,
		StartBlock:    cfg.Chain.StartBlock,
	})
	if err != nil {
		return fmt.Errorf("failed to create sync worker: %w", err)
	}

	if err := syncWorker.Start(ctx); err != nil {
		return err
	}
	logger.WithField("run_id", syncWorker.GetStatus().RunID).Info("Indexer running")

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := syncWorker.Stop(stopCtx); err != nil {
		logger.WithError(err).Warn("Sync worker did not stop cleanly")
	}

	status := syncWorker.GetStatus()
	logger.WithFields(map[string]interface{}{
		"last_block": status.LastBlockProcessed,
		"events":     status.EventsProcessed,
		"skipped":    status.EventsSkipped,
	}).Info("Indexer stopped")
	return nil
}

func openStore(cfg *config.Config, logger *logging.Logger) (*storage.Store, func(), error) {
	if cfg.Database.Backend == "memory" {
		logger.Warn("Using in-memory aggregate store, state is lost on exit")
		return storage.NewMemoryStore(), func() {}, nil
	}
	db, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	logger.Info("Connected to Postgres")
	return storage.NewPostgresStore(db), db.Close, nil
}

func openEventLog(cfg *config.Config, logger *logging.Logger) (storage.EventLog, error) {
	chCfg := cfg.Database.ClickHouse
	if !chCfg.Enabled {
		logger.Warn("ClickHouse disabled, raw events are kept in memory only")
		return storage.NewMemoryEventLog(), nil
	}
	db, err := storage.NewClickHouseDB(&chCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	logger.Info("Connected to ClickHouse")
	return &closingEventLog{
		ClickHouseEventLog: storage.NewClickHouseEventLog(db, &storage.EventLogConfig{
			BatchMaxRows:  chCfg.BatchMaxRows,
			BatchInterval: chCfg.BatchInterval,
		}),
		db: db,
	}, nil
}

// closingEventLog closes the ClickHouse connection after the final flush
type closingEventLog struct {
	*storage.ClickHouseEventLog
	db *storage.ClickHouseDB
}

func (l *closingEventLog) Close(ctx context.Context) error {
	err := l.ClickHouseEventLog.Close(ctx)
	if cerr := l.db.Close(); err == nil {
		err = cerr
	}
	return err
}

func openDeduper(cfg *config.Config, logger *logging.Logger) (storage.Deduper, func(), error) {
	if !cfg.Dedupe.Enabled {
		return storage.NewMemoryDeduper(), func() {}, nil
	}
	client, err := storage.NewRedisClient(&cfg.Database.Redis)
	if err != nil {
		return nil, nil, err
	}
	deduper, err := storage.NewRedisDeduper(client, &cfg.Dedupe)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	logger.Info("Connected to Redis replay guard")
	return deduper, func() { _ = client.Close() }, nil
}

func openPublisher(cfg *config.Config, logger *logging.Logger) (notify.Publisher, error) {
	if !cfg.NATS.Enabled {
		return notify.NopPublisher{}, nil
	}
	p, err := notify.NewNATSPublisher(&cfg.NATS)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return p, nil
}
