package service

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stele-indexer/internal/errors"
	"github.com/stele-indexer/internal/events"
	"github.com/stele-indexer/internal/storage"
	"github.com/stele-indexer/internal/types"
)

// strayEvent is an event type the engine has no handler for
type strayEvent struct {
	Note string `json:"note"`
	events.Meta
}

func (*strayEvent) EventName() string { return "Stray" }

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	env := newTestEnv(t)

	_, err := NewEngine(EngineConfig{})
	assert.EqualError(t, err, "store is required")

	_, err = NewEngine(EngineConfig{Store: env.store})
	assert.EqualError(t, err, "event log is required")

	_, err = NewEngine(EngineConfig{Store: env.store, EventLog: env.eventLog})
	assert.EqualError(t, err, "contract reader is required")

	_, err = NewEngine(EngineConfig{Store: env.store, EventLog: env.eventLog, Reader: env.reader})
	assert.EqualError(t, err, "price source is required")

	e, err := NewEngine(EngineConfig{Store: env.store, EventLog: env.eventLog, Reader: env.reader, Prices: env.prices})
	require.NoError(t, err)
	assert.NotNil(t, e.deduper)
	assert.NotNil(t, e.publisher)
	assert.NotNil(t, e.snapshots)
}

func TestProcess_SwapForUnknownInvestorOnlyRecordsRawEvent(t *testing.T) {
	env := newTestEnv(t)

	swap := &events.Swap{
		ChallengeID: big.NewInt(1),
		User:        alice,
		FromAsset:   usdToken,
		ToAsset:     wethToken,
		FromAmount:  big.NewInt(100),
		ToAmount:    big.NewInt(1),
		Meta:        env.steleMeta(day0),
	}
	require.NoError(t, env.engine.Process(env.ctx(), swap))

	assert.Equal(t, 0, env.backend.EntityCount(storage.KindInvestor))
	assert.Equal(t, 0, env.backend.SnapshotCount(types.KindInvestor))
	assert.Equal(t, int64(0), env.reader.Calls.Load(), "no contract reads for a dropped swap")

	raw := env.eventLog.Events()
	require.Len(t, raw, 1)
	assert.Equal(t, "Swap", raw[0].Name)
	assert.Equal(t, swap.Key(), raw[0].Key)
	assert.Equal(t, steleAddr.Hex(), raw[0].Contract)
}

func TestProcess_DuplicateDeliveryIsAppliedOnce(t *testing.T) {
	env := newTestEnv(t)
	env.process(&events.ProposalCreated{
		ProposalID: big.NewInt(7),
		Proposer:   alice,
		VoteStart:  big.NewInt(int64(day0)),
		VoteEnd:    big.NewInt(int64(day0 + secondsPerDay)),
		Meta:       env.govMeta(day0),
	})

	vote := &events.VoteCast{
		Voter:      bob,
		ProposalID: big.NewInt(7),
		Support:    1,
		Weight:     big.NewInt(40),
		Meta:       env.govMeta(day0 + 10),
	}
	env.process(vote, vote)

	vr := env.voteResult("7")
	assert.Equal(t, uint64(1), vr.VoterCount)
	assert.True(t, vr.ForVotes.Equal(dec("40")))

	// both deliveries reach the audit log
	assert.Equal(t, 3, env.eventLog.Len())
}

func TestProcess_FailedCommitRollsBackAndAllowsRetry(t *testing.T) {
	env := newTestEnv(t)
	flaky := &flakyBackend{MemoryBackend: env.backend}
	engine := env.newEngine(storage.NewStore(flaky), env.eventLog)

	created := &events.ProposalCreated{
		ProposalID: big.NewInt(9),
		Proposer:   alice,
		VoteStart:  big.NewInt(int64(day0)),
		VoteEnd:    big.NewInt(int64(day0 + secondsPerDay)),
		Meta:       env.govMeta(day0),
	}

	flaky.setFailing(true)
	err := engine.Process(context.Background(), created)
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryDatabase, apperrors.CategoryOf(err))
	assert.Equal(t, 0, env.backend.EntityCount(storage.KindProposal))
	assert.Equal(t, 0, env.backend.EntityCount(storage.KindVoteResult))
	assert.Empty(t, env.publisher.published())

	flaky.setFailing(false)
	require.NoError(t, engine.Process(context.Background(), created))
	assert.Equal(t, 1, env.backend.EntityCount(storage.KindProposal))
	assert.Equal(t, 1, env.backend.EntityCount(storage.KindVoteResult))
}

func newProposal(env *testEnv, id int64) *events.ProposalCreated {
	return &events.ProposalCreated{
		ProposalID: big.NewInt(id),
		Proposer:   alice,
		VoteStart:  big.NewInt(int64(day0)),
		VoteEnd:    big.NewInt(int64(day0 + secondsPerDay)),
		Meta:       env.govMeta(day0),
	}
}

func TestProcess_RetryAppliesWhenReplayGuardCannotBeReleased(t *testing.T) {
	env := newTestEnv(t)
	flaky := &flakyBackend{MemoryBackend: env.backend}
	store := storage.NewStore(flaky)
	engine := env.newEngineWithDeduper(store, env.eventLog, &stuckDeduper{MemoryDeduper: storage.NewMemoryDeduper()})
	created := newProposal(env, 11)

	flaky.setFailing(true)
	require.Error(t, engine.Process(context.Background(), created))
	applied, err := store.EventApplied(context.Background(), created.Key())
	require.NoError(t, err)
	assert.False(t, applied, "applied record rolls back with the event")

	flaky.setFailing(false)
	require.NoError(t, engine.Process(context.Background(), created))
	assert.Equal(t, 1, env.backend.EntityCount(storage.KindProposal))
	assert.Equal(t, 1, env.backend.EntityCount(storage.KindVoteResult))

	// a third delivery is now a confirmed replay
	require.NoError(t, engine.Process(context.Background(), created))
	assert.Equal(t, 1, env.backend.EntityCount(storage.KindAppliedEvent))
}

func TestProcess_StaleReplayMarkIsReapplied(t *testing.T) {
	env := newTestEnv(t)
	created := newProposal(env, 12)

	// marked by a run that died before committing
	seen, err := env.deduper.Seen(context.Background(), created.Key())
	require.NoError(t, err)
	require.False(t, seen)

	env.process(created)
	assert.Equal(t, 1, env.backend.EntityCount(storage.KindProposal))
}

func TestProcess_ReplayIsDetectedWithoutDeduper(t *testing.T) {
	env := newTestEnv(t)
	env.engine = env.newEngineWithDeduper(env.store, env.eventLog, storage.NopDeduper{})
	env.process(newProposal(env, 13))

	vote := &events.VoteCast{
		Voter:      bob,
		ProposalID: big.NewInt(13),
		Support:    1,
		Weight:     big.NewInt(25),
		Meta:       env.govMeta(day0 + 10),
	}
	env.process(vote)
	published := len(env.publisher.published())
	env.process(vote)

	vr := env.voteResult("13")
	assert.Equal(t, uint64(1), vr.VoterCount)
	assert.True(t, vr.ForVotes.Equal(dec("25")))
	assert.Len(t, env.publisher.published(), published, "replay publishes nothing")
}

func TestProcess_DeduperOutageDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	env.engine = env.newEngineWithDeduper(env.store, env.eventLog, &stuckDeduper{
		MemoryDeduper: storage.NewMemoryDeduper(),
		seenErr:       apperrors.NewDatabaseError("redis setnx", errBoom),
	})

	env.process(newProposal(env, 14))
	assert.Equal(t, 1, env.backend.EntityCount(storage.KindProposal))
}

func TestProcess_EventLogFailureDoesNotGateAggregation(t *testing.T) {
	env := newTestEnv(t)
	env.engine = env.newEngine(env.store, failingEventLog{})

	env.process(&events.VotingDelaySet{
		OldVotingDelay: big.NewInt(1),
		NewVotingDelay: big.NewInt(7200),
		Meta:           env.govMeta(day0),
	})

	g, ok, err := env.store.LoadGovernanceConfig(env.ctx(), governorAddr.Hex())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, g.VotingDelay.Equal(dec("7200")))
}

func TestProcess_PublishesTouchedEntities(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapStele()

	assert.ElementsMatch(t, []string{"stele.stele", "stele.active_challenges"}, env.publisher.published())
}

func TestProcess_PublishFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = errBoom

	env.bootstrapStele()
	assert.NotEmpty(t, env.publisher.published())
	env.steleState()
}

func TestProcess_UnhandledEventIsRecordedOnly(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.engine.Process(env.ctx(), &strayEvent{Note: "x", Meta: env.steleMeta(day0)}))
	assert.Equal(t, 1, env.eventLog.Len())
	assert.Empty(t, env.publisher.published())
}

func TestProcess_RegisterIsRecordedOnly(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapStele()
	before := env.publisher.published()

	env.process(&events.Register{
		ChallengeID: big.NewInt(1),
		User:        alice,
		Performance: big.NewInt(123),
		Meta:        env.steleMeta(day0),
	})

	assert.Equal(t, 2, env.eventLog.Len())
	assert.Equal(t, before, env.publisher.published())
}

func TestToUint64(t *testing.T) {
	assert.Equal(t, uint64(0), toUint64(nil))
	assert.Equal(t, uint64(0), toUint64(big.NewInt(-5)))
	assert.Equal(t, uint64(42), toUint64(big.NewInt(42)))
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	assert.Equal(t, ^uint64(0), toUint64(huge))
}
