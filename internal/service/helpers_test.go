package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stele-indexer/internal/adapter"
	apperrors "github.com/stele-indexer/internal/errors"
	"github.com/stele-indexer/internal/events"
	"github.com/stele-indexer/internal/logging"
	"github.com/stele-indexer/internal/models"
	"github.com/stele-indexer/internal/storage"
)

// 2023-11-14 22:13:20 UTC, inside day bucket 19675
const day0 uint64 = 1_700_000_000

const secondsPerDay uint64 = 86400

var (
	governorAddr = common.HexToAddress("0x00000000000000000000000000000000000000C0")
	steleAddr    = common.HexToAddress("0x00000000000000000000000000000000000000D0")
	usdToken     = common.HexToAddress("0x00000000000000000000000000000000000000E1")
	wethToken    = common.HexToAddress("0x00000000000000000000000000000000000000E2")
	altToken     = common.HexToAddress("0x00000000000000000000000000000000000000E3")
	alice        = common.HexToAddress("0x000000000000000000000000000000000000A11C")
	bob          = common.HexToAddress("0x0000000000000000000000000000000000000B0B")

	errBoom = errors.New("boom")
)

// fakePrices serves fixed prices
type fakePrices struct {
	mu       sync.Mutex
	ethUSD   decimal.Decimal
	tokens   map[common.Address]decimal.Decimal
	ethCalls int
}

func newFakePrices(ethUSD string) *fakePrices {
	return &fakePrices{ethUSD: decimal.RequireFromString(ethUSD), tokens: make(map[common.Address]decimal.Decimal)}
}

func (f *fakePrices) set(token common.Address, priceETH string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = decimal.RequireFromString(priceETH)
}

func (f *fakePrices) ETHPriceInUSD(ctx context.Context) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ethCalls++
	return f.ethUSD
}

func (f *fakePrices) TokenPriceInETH(ctx context.Context, token common.Address) (decimal.Decimal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.tokens[token]
	return p, ok
}

// recordingPublisher keeps every published subject
type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

// failingEventLog rejects every append
type failingEventLog struct{}

func (failingEventLog) Append(ctx context.Context, event *models.RawEvent) error { return errBoom }

func (failingEventLog) Close(ctx context.Context) error { return nil }

// stuckDeduper is a memory deduper whose releases fail and whose lookups
// can be made to fail
type stuckDeduper struct {
	*storage.MemoryDeduper
	seenErr error
}

func (d *stuckDeduper) Seen(ctx context.Context, key string) (bool, error) {
	if d.seenErr != nil {
		return false, d.seenErr
	}
	return d.MemoryDeduper.Seen(ctx, key)
}

func (d *stuckDeduper) Forget(ctx context.Context, key string) error {
	return apperrors.NewDatabaseError("redis del", errBoom)
}

// flakyBackend fails entity writes inside transactions while failPuts is set
type flakyBackend struct {
	*storage.MemoryBackend
	mu       sync.Mutex
	failPuts bool
}

func (f *flakyBackend) setFailing(v bool) {
	f.mu.Lock()
	f.failPuts = v
	f.mu.Unlock()
}

func (f *flakyBackend) failing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failPuts
}

func (f *flakyBackend) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Backend) error) error {
	return f.MemoryBackend.RunInTx(ctx, func(ctx context.Context, tx storage.Backend) error {
		return fn(ctx, &flakyTx{Backend: tx, parent: f})
	})
}

type flakyTx struct {
	storage.Backend
	parent *flakyBackend
}

func (t *flakyTx) Put(ctx context.Context, kind storage.Kind, id string, body []byte) error {
	if t.parent.failing() {
		return apperrors.NewDatabaseError("put", errBoom)
	}
	return t.Backend.Put(ctx, kind, id, body)
}

// testEnv is an engine over in-memory collaborators
type testEnv struct {
	t         *testing.T
	backend   *storage.MemoryBackend
	store     *storage.Store
	eventLog  *storage.MemoryEventLog
	deduper   *storage.MemoryDeduper
	reader    *adapter.FakeReader
	prices    *fakePrices
	publisher *recordingPublisher
	engine    *Engine

	nextLog uint
	nextTx  int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := storage.NewMemoryBackend()
	env := &testEnv{
		t:         t,
		backend:   backend,
		store:     storage.NewStore(backend),
		eventLog:  storage.NewMemoryEventLog(),
		deduper:   storage.NewMemoryDeduper(),
		reader:    adapter.NewFakeReader(),
		prices:    newFakePrices("2000"),
		publisher: &recordingPublisher{},
	}
	env.engine = env.newEngine(env.store, env.eventLog)
	return env
}

func (env *testEnv) newEngine(store *storage.Store, eventLog storage.EventLog) *Engine {
	env.t.Helper()
	return env.newEngineWithDeduper(store, eventLog, env.deduper)
}

func (env *testEnv) newEngineWithDeduper(store *storage.Store, eventLog storage.EventLog, deduper storage.Deduper) *Engine {
	env.t.Helper()
	e, err := NewEngine(EngineConfig{
		Store:         store,
		EventLog:      eventLog,
		Deduper:       deduper,
		Reader:        env.reader,
		Prices:        env.prices,
		Publisher:     env.publisher,
		SubjectPrefix: "stele",
		Governor:      governorAddr,
		Stele:         steleAddr,
		Logger:        logging.NewNopLogger(),
	})
	require.NoError(env.t, err)
	return e
}

// meta returns fresh delivery coordinates at timestamp
func (env *testEnv) meta(contract common.Address, timestamp uint64) events.Meta {
	env.nextLog++
	env.nextTx++
	return events.Meta{
		Contract:       contract,
		BlockNumber:    100 + uint64(env.nextTx),
		BlockTimestamp: timestamp,
		TxHash:         common.BigToHash(big.NewInt(env.nextTx)),
		LogIndex:       env.nextLog,
	}
}

func (env *testEnv) govMeta(timestamp uint64) events.Meta { return env.meta(governorAddr, timestamp) }
func (env *testEnv) steleMeta(timestamp uint64) events.Meta { return env.meta(steleAddr, timestamp) }

func (env *testEnv) process(evs ...events.Event) {
	env.t.Helper()
	for _, ev := range evs {
		require.NoError(env.t, env.engine.Process(context.Background(), ev))
	}
}

func (env *testEnv) ctx() context.Context {
	return context.Background()
}

// bootstrapStele creates the stele singleton with usdToken at 6 decimals
func (env *testEnv) bootstrapStele() {
	env.t.Helper()
	env.reader.SetToken(usdToken, "USDC", 6)
	env.process(&events.SteleCreated{
		Owner:       alice,
		USDToken:    usdToken,
		MaxAssets:   big.NewInt(10),
		SeedMoney:   big.NewInt(1000),
		EntryFee:    big.NewInt(10),
		RewardRatio: []*big.Int{big.NewInt(50), big.NewInt(30), big.NewInt(20)},
		Meta:        env.steleMeta(day0),
	})
}

func (env *testEnv) createChallenge(id int64, challengeType uint8, timestamp uint64) {
	env.t.Helper()
	env.process(&events.Create{
		ChallengeID:   big.NewInt(id),
		ChallengeType: challengeType,
		SeedMoney:     big.NewInt(1000),
		EntryFee:      big.NewInt(10),
		Meta:          env.steleMeta(timestamp),
	})
}

func (env *testEnv) join(id int64, user common.Address, seed int64, timestamp uint64) {
	env.t.Helper()
	env.process(&events.Join{
		ChallengeID: big.NewInt(id),
		User:        user,
		SeedMoney:   big.NewInt(seed),
		Meta:        env.steleMeta(timestamp),
	})
}

func (env *testEnv) steleState() *models.Stele {
	env.t.Helper()
	st, ok, err := env.store.LoadStele(env.ctx(), steleAddr.Hex())
	require.NoError(env.t, err)
	require.True(env.t, ok, "stele missing")
	return st
}

func (env *testEnv) challenge(id string) *models.Challenge {
	env.t.Helper()
	c, ok, err := env.store.LoadChallenge(env.ctx(), id)
	require.NoError(env.t, err)
	require.True(env.t, ok, "challenge %s missing", id)
	return c
}

func (env *testEnv) active() *models.ActiveChallenges {
	env.t.Helper()
	a, ok, err := env.store.LoadActiveChallenges(env.ctx(), steleAddr.Hex())
	require.NoError(env.t, err)
	require.True(env.t, ok, "active challenges missing")
	return a
}

func (env *testEnv) investor(challengeID string, user common.Address) *models.Investor {
	env.t.Helper()
	inv, ok, err := env.store.LoadInvestor(env.ctx(), models.InvestorID(challengeID, user))
	require.NoError(env.t, err)
	require.True(env.t, ok, "investor missing")
	return inv
}

func (env *testEnv) voteResult(id string) *models.VoteResult {
	env.t.Helper()
	vr, ok, err := env.store.LoadVoteResult(env.ctx(), id)
	require.NoError(env.t, err)
	require.True(env.t, ok, "vote result %s missing", id)
	return vr
}

func (env *testEnv) proposal(id string) *models.Proposal {
	env.t.Helper()
	p, ok, err := env.store.LoadProposal(env.ctx(), id)
	require.NoError(env.t, err)
	require.True(env.t, ok, "proposal %s missing", id)
	return p
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
