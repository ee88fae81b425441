// Package worker polls the chain for governor and stele logs and feeds them
// to the aggregation engine in delivery order.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/stele-indexer/internal/adapter"
	"github.com/stele-indexer/internal/events"
	"github.com/stele-indexer/internal/logging"
)

// DefaultCheckpoint names the progress row of the indexer
const DefaultCheckpoint = "stele-indexer"

// Processor applies one decoded event
type Processor interface {
	Process(ctx context.Context, ev events.Event) error
}

// Checkpoints persists the last fully processed block
type Checkpoints interface {
	LoadCheckpoint(ctx context.Context, name string) (uint64, bool, error)
	SaveCheckpoint(ctx context.Context, name string, block uint64) error
}

// SyncWorker handles checkpointed log polling
type SyncWorker struct {
	source      adapter.LogSource
	decoder     *events.Decoder
	processor   Processor
	checkpoints Checkpoints
	logger      *logging.Logger

	checkpoint    string
	addresses     []common.Address
	pollInterval  time.Duration
	maxBlocks     uint64
	confirmations uint64
	startBlock    uint64

	mu                 sync.RWMutex
	runID              string
	running            bool
	lastBlockProcessed uint64
	headBlock          uint64
	lastPollTime       time.Time
	lastError          string
	eventsProcessed    uint64
	eventsSkipped      uint64
	stopCh             chan struct{}
	doneCh             chan struct{}
}

// SyncWorkerConfig holds configuration for a sync worker
type SyncWorkerConfig struct {
	Source      adapter.LogSource
	Decoder     *events.Decoder
	Processor   Processor
	Checkpoints Checkpoints
	Logger      *logging.Logger

	// Checkpoint names the progress row. Default: DefaultCheckpoint.
	Checkpoint string
	// Addresses are the contracts whose logs are fetched. Zero addresses are ignored.
	Addresses     []common.Address
	PollInterval  time.Duration // default: 12s
	MaxBlocks     int           // blocks per poll, default: 500
	Confirmations uint64
	// StartBlock is the first block indexed when no checkpoint exists.
	// Zero starts at the confirmed head.
	StartBlock uint64
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(cfg *SyncWorkerConfig) (*SyncWorker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sync worker config is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("log source cannot be nil")
	}
	if cfg.Decoder == nil {
		return nil, fmt.Errorf("decoder cannot be nil")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}
	if cfg.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store cannot be nil")
	}

	var addresses []common.Address
	for _, a := range cfg.Addresses {
		if a != (common.Address{}) {
			addresses = append(addresses, a)
		}
	}
	if len(addresses) == 0 {
		return nil, fmt.Errorf("at least one contract address is required")
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 12 * time.Second
	}
	maxBlocks := cfg.MaxBlocks
	if maxBlocks <= 0 {
		maxBlocks = 500
	}
	checkpoint := cfg.Checkpoint
	if checkpoint == "" {
		checkpoint = DefaultCheckpoint
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &SyncWorker{
		source:        cfg.Source,
		decoder:       cfg.Decoder,
		processor:     cfg.Processor,
		checkpoints:   cfg.Checkpoints,
		logger:        logger.WithField("component", "sync_worker"),
		checkpoint:    checkpoint,
		addresses:     addresses,
		pollInterval:  pollInterval,
		maxBlocks:     uint64(maxBlocks),
		confirmations: cfg.Confirmations,
		startBlock:    cfg.StartBlock,
	}, nil
}

// Start resumes from the checkpoint and begins polling
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker %s is already running", w.checkpoint)
	}
	w.running = true
	w.runID = uuid.New().String()
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	logger := w.logger.WithField("run_id", w.runID)
	w.mu.Unlock()

	lastBlock, err := w.initialBlock(ctx)
	if err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	w.lastBlockProcessed = lastBlock
	w.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"from_block":    lastBlock + 1,
		"poll_interval": w.pollInterval.String(),
		"max_blocks":    w.maxBlocks,
	}).Info("Starting sync worker")

	go w.pollLoop(ctx, logger)
	return nil
}

// initialBlock returns the block before the first one to index
func (w *SyncWorker) initialBlock(ctx context.Context) (uint64, error) {
	saved, ok, err := w.checkpoints.LoadCheckpoint(ctx, w.checkpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint %s: %w", w.checkpoint, err)
	}
	if ok {
		return saved, nil
	}
	if w.startBlock > 0 {
		return w.startBlock - 1, nil
	}
	head, err := w.source.GetCurrentBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current block: %w", err)
	}
	return w.confirmed(head), nil
}

func (w *SyncWorker) confirmed(head uint64) uint64 {
	if head < w.confirmations {
		return 0
	}
	return head - w.confirmations
}

// Stop gracefully stops the sync worker
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker %s is not running", w.checkpoint)
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		w.logger.Info("Sync worker stopped")
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *SyncWorker) pollLoop(ctx context.Context, logger *logging.Logger) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		// catch up without waiting for the ticker while far behind
		for {
			processed, behind, err := w.PollChain(ctx)
			if err != nil {
				logger.WithError(err).Warn("Poll failed, retrying next tick")
				break
			}
			if processed > 0 {
				logger.WithField("events", processed).Debug("Poll applied events")
			}
			if !behind {
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			default:
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("Context cancelled, sync worker exiting")
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// PollChain fetches and applies the logs of the next confirmed block range.
// It returns the number of events applied and whether more confirmed blocks
// remain. The checkpoint only advances past blocks whose events all applied.
func (w *SyncWorker) PollChain(ctx context.Context) (int, bool, error) {
	head, err := w.source.GetCurrentBlock(ctx)
	if err != nil {
		return 0, false, w.fail(fmt.Errorf("failed to get current block: %w", err))
	}
	target := w.confirmed(head)

	w.mu.Lock()
	w.lastPollTime = time.Now()
	w.headBlock = head
	last := w.lastBlockProcessed
	w.mu.Unlock()

	if target <= last {
		return 0, false, nil
	}

	from := last + 1
	to := target
	if to-last > w.maxBlocks {
		to = last + w.maxBlocks
	}

	logs, err := w.source.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: w.addresses,
	})
	if err != nil {
		return 0, false, w.fail(fmt.Errorf("failed to filter logs %d-%d: %w", from, to, err))
	}
	events.SortLogs(logs)

	applied, failedBlock, err := w.apply(ctx, logs)
	if err != nil {
		// blocks before the failing one are complete; replays of the
		// failing block are absorbed by the engine's replay guard
		if failedBlock > from {
			w.advance(ctx, failedBlock-1)
		}
		return applied, false, w.fail(err)
	}

	w.advance(ctx, to)
	w.mu.Lock()
	w.lastError = ""
	w.mu.Unlock()
	return applied, to < target, nil
}

// apply decodes and processes logs in order. On error it returns the block
// of the log that failed.
func (w *SyncWorker) apply(ctx context.Context, logs []ethtypes.Log) (int, uint64, error) {
	timestamps := make(map[uint64]uint64)
	applied := 0
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ts, ok := timestamps[lg.BlockNumber]
		if !ok {
			var err error
			ts, err = w.source.BlockTimestamp(ctx, lg.BlockNumber)
			if err != nil {
				return applied, lg.BlockNumber, fmt.Errorf("failed to get timestamp of block %d: %w", lg.BlockNumber, err)
			}
			timestamps[lg.BlockNumber] = ts
		}

		ev, err := w.decoder.Decode(lg, ts)
		if err != nil {
			fields := map[string]interface{}{
				"block":     lg.BlockNumber,
				"tx":        lg.TxHash.Hex(),
				"log_index": lg.Index,
				"contract":  lg.Address.Hex(),
			}
			if errors.Is(err, events.ErrUnknownEvent) {
				w.logger.WithFields(fields).Debug("Skipping log with unknown topic")
			} else {
				w.logger.WithFields(fields).WithError(err).Warn("Skipping undecodable log")
			}
			w.mu.Lock()
			w.eventsSkipped++
			w.mu.Unlock()
			continue
		}

		if err := w.processor.Process(ctx, ev); err != nil {
			return applied, lg.BlockNumber, fmt.Errorf("failed to process %s at block %d: %w", ev.EventName(), lg.BlockNumber, err)
		}
		applied++
		w.mu.Lock()
		w.eventsProcessed++
		w.mu.Unlock()
	}
	return applied, 0, nil
}

func (w *SyncWorker) advance(ctx context.Context, block uint64) {
	w.mu.Lock()
	if block <= w.lastBlockProcessed {
		w.mu.Unlock()
		return
	}
	w.lastBlockProcessed = block
	w.mu.Unlock()

	if err := w.checkpoints.SaveCheckpoint(ctx, w.checkpoint, block); err != nil {
		// progress is re-derived from the replay guard on restart
		w.logger.WithError(err).WithField("block", block).Error("Failed to save checkpoint")
	}
}

func (w *SyncWorker) fail(err error) error {
	w.mu.Lock()
	w.lastError = err.Error()
	w.mu.Unlock()
	return err
}

// GetStatus returns current worker status
func (w *SyncWorker) GetStatus() *SyncWorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return &SyncWorkerStatus{
		RunID:               w.runID,
		Checkpoint:          w.checkpoint,
		Running:             w.running,
		LastPollTime:        w.lastPollTime,
		LastBlockProcessed:  w.lastBlockProcessed,
		HeadBlock:           w.headBlock,
		EventsProcessed:     w.eventsProcessed,
		EventsSkipped:       w.eventsSkipped,
		LastError:           w.lastError,
		PollIntervalSeconds: int(w.pollInterval.Seconds()),
	}
}

// SyncWorkerStatus represents the current status of a sync worker
type SyncWorkerStatus struct {
	RunID               string    `json:"runId"`
	Checkpoint          string    `json:"checkpoint"`
	Running             bool      `json:"running"`
	LastPollTime        time.Time `json:"lastPollTime"`
	LastBlockProcessed  uint64    `json:"lastBlockProcessed"`
	HeadBlock           uint64    `json:"headBlock"`
	EventsProcessed     uint64    `json:"eventsProcessed"`
	EventsSkipped       uint64    `json:"eventsSkipped"`
	LastError           string    `json:"lastError,omitempty"`
	PollIntervalSeconds int       `json:"pollIntervalSeconds"`
}
