// Package service folds decoded contract events into the indexer's
// aggregates and their daily snapshots.
package service

import (
	"context"
	"errors"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/stele-indexer/internal/adapter"
	apperrors "github.com/stele-indexer/internal/errors"
	"github.com/stele-indexer/internal/events"
	"github.com/stele-indexer/internal/logging"
	"github.com/stele-indexer/internal/models"
	"github.com/stele-indexer/internal/notify"
	"github.com/stele-indexer/internal/storage"
	"github.com/stele-indexer/internal/types"
)

// PriceSource values tokens for investor portfolios
type PriceSource interface {
	ETHPriceInUSD(ctx context.Context) decimal.Decimal
	TokenPriceInETH(ctx context.Context, token common.Address) (decimal.Decimal, bool)
}

// EngineConfig wires the engine's collaborators
type EngineConfig struct {
	Store     *storage.Store
	EventLog  storage.EventLog
	Deduper   storage.Deduper
	Reader    adapter.ContractReader
	Prices    PriceSource
	Snapshots *SnapshotScheduler
	Publisher notify.Publisher

	// SubjectPrefix prefixes entity update subjects
	SubjectPrefix string

	Governor common.Address
	Stele    common.Address

	Logger *logging.Logger
}

// Engine applies events one at a time. Each event's aggregate writes
// commit in a single store transaction.
type Engine struct {
	store     *storage.Store
	eventLog  storage.EventLog
	deduper   storage.Deduper
	reader    adapter.ContractReader
	prices    PriceSource
	snapshots *SnapshotScheduler
	publisher notify.Publisher
	prefix    string
	governor  common.Address
	stele     common.Address
	logger    *logging.Logger
}

// NewEngine validates cfg and fills in no-op collaborators where optional
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.EventLog == nil {
		return nil, errors.New("event log is required")
	}
	if cfg.Reader == nil {
		return nil, errors.New("contract reader is required")
	}
	if cfg.Prices == nil {
		return nil, errors.New("price source is required")
	}

	e := &Engine{
		store:     cfg.Store,
		eventLog:  cfg.EventLog,
		deduper:   cfg.Deduper,
		reader:    cfg.Reader,
		prices:    cfg.Prices,
		snapshots: cfg.Snapshots,
		publisher: cfg.Publisher,
		prefix:    cfg.SubjectPrefix,
		governor:  cfg.Governor,
		stele:     cfg.Stele,
		logger:    cfg.Logger,
	}
	if e.deduper == nil {
		e.deduper = storage.NopDeduper{}
	}
	if e.snapshots == nil {
		e.snapshots = NewSnapshotScheduler()
	}
	if e.publisher == nil {
		e.publisher = notify.NopPublisher{}
	}
	if e.logger == nil {
		e.logger = logging.GetGlobalLogger()
	}
	return e, nil
}

// Process records ev in the event log and applies it to the aggregates.
// Aggregation problems are logged and skipped; only storage failures are
// returned, in which case nothing of the event was committed.
//
// The applied-event record written inside the event's transaction is what
// decides whether a delivery is a replay. The deduper only short-circuits
// replays the store confirms.
func (e *Engine) Process(ctx context.Context, ev events.Event) error {
	meta := ev.EventMeta()
	key := meta.Key()
	logger := e.logger.WithFields(map[string]interface{}{
		"event":     ev.EventName(),
		"key":       key,
		"block":     meta.BlockNumber,
		"log_index": meta.LogIndex,
	})
	ctx = logging.WithLogger(ctx, logger)

	e.appendRaw(ctx, ev)

	skip, err := e.knownReplay(ctx, key)
	if err != nil {
		return err
	}
	if skip {
		logger.Debug("Skipping already applied event")
		return nil
	}

	var (
		changed []touched
		replay  bool
	)
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx *storage.Store) error {
		fresh, err := tx.MarkEventApplied(ctx, &models.AppliedEvent{
			Key:         key,
			Name:        ev.EventName(),
			BlockNumber: meta.BlockNumber,
		})
		if err != nil {
			return err
		}
		if !fresh {
			replay = true
			return nil
		}

		ac := newAggregationContext(tx, e.governor, e.stele)
		if err := e.dispatch(adapter.WithCallBlock(ctx, meta.BlockNumber), ac, ev); err != nil {
			return err
		}
		if err := ac.flush(ctx); err != nil {
			return err
		}
		changed = ac.changed
		return nil
	})
	if err != nil {
		if ferr := e.deduper.Forget(ctx, key); ferr != nil {
			logger.WithError(ferr).Warn("Failed to release replay guard")
		}
		logger.WithError(err).Error("Failed to apply event")
		return err
	}
	if replay {
		logger.Debug("Skipping already applied event")
		return nil
	}

	e.publish(ctx, ev, changed)
	return nil
}

// knownReplay consults the deduper and, when it reports a replay, confirms
// it against the store. A deduper outage never blocks processing.
func (e *Engine) knownReplay(ctx context.Context, key string) (bool, error) {
	seen, err := e.deduper.Seen(ctx, key)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Replay guard unavailable")
		return false, nil
	}
	if !seen {
		return false, nil
	}
	applied, err := e.store.EventApplied(ctx, key)
	if err != nil {
		return false, err
	}
	if !applied {
		logging.FromContext(ctx).Info("Replay guard mark has no applied record, reapplying")
	}
	return applied, nil
}

func (e *Engine) appendRaw(ctx context.Context, ev events.Event) {
	raw, err := events.ToRawEvent(ev)
	if err == nil {
		err = e.eventLog.Append(ctx, raw)
	}
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to record raw event")
	}
}

func (e *Engine) publish(ctx context.Context, ev events.Event, changed []touched) {
	meta := ev.EventMeta()
	for _, c := range changed {
		err := notify.PublishUpdate(ctx, e.publisher, e.prefix, notify.EntityUpdate{
			Kind:        string(c.kind),
			ID:          c.id,
			EventKey:    meta.Key(),
			EventName:   ev.EventName(),
			BlockNumber: meta.BlockNumber,
		})
		if err != nil {
			logging.FromContext(ctx).WithError(err).WithField("entity", c.id).Warn("Failed to publish entity update")
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, ac *aggregationContext, ev events.Event) error {
	var err error
	switch ev := ev.(type) {
	// governor
	case *events.ProposalCreated:
		err = e.onProposalCreated(ctx, ac, ev)
	case *events.VoteCast:
		err = e.castVote(ctx, ac, &ev.Meta, ev.Voter, ev.ProposalID, ev.Support, ev.Weight, ev.Reason, nil)
	case *events.VoteCastWithParams:
		err = e.castVote(ctx, ac, &ev.Meta, ev.Voter, ev.ProposalID, ev.Support, ev.Weight, ev.Reason, ev.Params)
	case *events.ProposalQueued:
		err = e.onProposalQueued(ctx, ac, ev)
	case *events.ProposalExecuted:
		err = e.closeProposal(ctx, ac, ev, ev.ProposalID, types.ProposalExecuted)
	case *events.ProposalCanceled:
		err = e.closeProposal(ctx, ac, ev, ev.ProposalID, types.ProposalCanceled)
	case *events.ProposalThresholdSet, *events.QuorumNumeratorUpdated, *events.VotingDelaySet,
		*events.VotingPeriodSet, *events.TimelockChange:
		err = e.onGovernanceSetting(ctx, ac, ev)

	// stele
	case *events.SteleCreated:
		err = e.onSteleCreated(ctx, ac, ev)
	case *events.RewardRatio, *events.SeedMoney, *events.EntryFee, *events.MaxAssets,
		*events.OwnershipTransferred:
		err = e.onSteleSetting(ctx, ac, ev)
	case *events.AddToken:
		err = e.onAddToken(ctx, ac, ev)
	case *events.RemoveToken:
		err = e.onRemoveToken(ctx, ac, ev)
	case *events.Create:
		err = e.onCreate(ctx, ac, ev)
	case *events.Join:
		err = e.onJoin(ctx, ac, ev)
	case *events.Swap:
		err = e.onSwap(ctx, ac, ev)
	case *events.Reward:
		err = e.onReward(ctx, ac, ev)
	case *events.Register:
		// audit record only
	default:
		err = apperrors.NewUnknownEnumerationError("event", ev.EventName())
	}
	return e.tolerate(ctx, err)
}

// tolerate logs aggregation errors and swallows them. Anything else is
// returned so the event's transaction rolls back.
func (e *Engine) tolerate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if !apperrors.IsAggregationError(err) {
		return err
	}
	logging.FromContext(ctx).
		WithField("category", string(apperrors.CategoryOf(err))).
		WithError(err).
		Warn("Skipping side effect")
	return nil
}

// snapshot persists the dirty singletons and takes the day's snapshot of
// the mutated entity
func (e *Engine) snapshot(ctx context.Context, ac *aggregationContext, kind types.EntityKind, key string, timestamp uint64) error {
	if err := ac.flush(ctx); err != nil {
		return err
	}
	_, err := e.snapshots.OnMutation(ctx, ac.tx, kind, key, timestamp)
	return e.tolerate(ctx, err)
}

// decimalsOf reads token decimals. A revert becomes an unresolvable-decimals
// error; transport failures are provider errors.
func (e *Engine) decimalsOf(ctx context.Context, token common.Address) (uint8, error) {
	d, err := e.reader.Decimals(ctx, token)
	if err == nil {
		return d, nil
	}
	if adapter.IsReverted(err) {
		return 0, apperrors.NewUnresolvableDecimalsError(token.Hex(), err)
	}
	return 0, apperrors.NewProviderError("decimals", err)
}

// readFailure classifies a failed contract view call
func readFailure(call string, contract common.Address, err error) error {
	if adapter.IsReverted(err) {
		return apperrors.NewExternalCallRevertedError(call, contract.Hex(), err)
	}
	return apperrors.NewProviderError(call, err)
}

// toUint64 saturates v into a uint64, nil as zero
func toUint64(v *big.Int) uint64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}
