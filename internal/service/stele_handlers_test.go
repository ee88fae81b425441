package service

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stele-indexer/internal/adapter"
	"github.com/stele-indexer/internal/events"
	"github.com/stele-indexer/internal/pricing"
	"github.com/stele-indexer/internal/storage"
	"github.com/stele-indexer/internal/types"
)

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func units(whole, decimals int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), pow10(decimals))
}

func TestSteleCreated_InitializesSingletons(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapStele()

	st := env.steleState()
	assert.Equal(t, steleAddr.Hex(), st.ID)
	assert.Equal(t, alice.Hex(), st.Owner)
	assert.Equal(t, usdToken.Hex(), st.USDToken)
	assert.True(t, st.SeedMoney.Equal(dec("1000")))
	assert.True(t, st.EntryFee.Equal(dec("10")))
	assert.True(t, st.MaxAssets.Equal(dec("10")))
	require.Len(t, st.RewardRatio, 3)
	assert.True(t, st.RewardRatio[0].Equal(dec("50")))
	assert.Zero(t, st.ChallengeCounter)
	assert.True(t, st.TotalRewardUSD.IsZero())

	active := env.active()
	for _, ct := range types.AllChallengeTypes {
		slot := active.Slot(ct)
		require.NotNil(t, slot)
		assert.Equal(t, "0", slot.ChallengeID)
		assert.True(t, slot.IsCompleted)
	}

	assert.Equal(t, 1, env.backend.SnapshotCount(types.KindStele))
}

func TestSteleSettings_RequireStele(t *testing.T) {
	env := newTestEnv(t)
	env.process(&events.SeedMoney{NewSeedMoney: big.NewInt(5), Meta: env.steleMeta(day0)})

	assert.Equal(t, 0, env.backend.EntityCount(storage.KindStele))
	assert.Equal(t, 1, env.eventLog.Len())
}

func TestSteleSettings_Overwrite(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapStele()

	env.process(
		&events.RewardRatio{NewRewardRatio: []*big.Int{big.NewInt(100)}, Meta: env.steleMeta(day0 + 1)},
		&events.SeedMoney{NewSeedMoney: big.NewInt(2000), Meta: env.steleMeta(day0 + 2)},
		&events.EntryFee{NewEntryFee: big.NewInt(25), Meta: env.steleMeta(day0 + 3)},
		&events.MaxAssets{NewMaxAssets: big.NewInt(3), Meta: env.steleMeta(day0 + 4)},
		&events.OwnershipTransferred{PreviousOwner: alice, NewOwner: bob, Meta: env.steleMeta(day0 + 5)},
	)

	st := env.steleState()
	require.Len(t, st.RewardRatio, 1)
	assert.True(t, st.RewardRatio[0].Equal(dec("100")))
	assert.True(t, st.SeedMoney.Equal(dec("2000")))
	assert.True(t, st.EntryFee.Equal(dec("25")))
	assert.True(t, st.MaxAssets.Equal(dec("3")))
	assert.Equal(t, bob.Hex(), st.Owner)

	// same day: the snapshot keeps the first state
	snap, ok, err := env.store.LoadSteleSnapshot(env.ctx(), "19675")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, alice.Hex(), snap.Owner)
}

func TestAddToken_AdmitsTokenWithMetadata(t *testing.T) {
	env := newTestEnv(t)
	env.reader.SetToken(wethToken, "WETH", 18)

	env.process(&events.AddToken{TokenAddress: wethToken, Meta: env.steleMeta(day0)})

	tok, ok, err := env.store.LoadToken(env.ctx(), wethToken.Hex())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "WETH", tok.Symbol)
	assert.Equal(t, uint8(18), tok.Decimals)
	assert.True(t, tok.IsInvestable)
	assert.Equal(t, day0, tok.UpdatedTimestamp)

	env.process(&events.RemoveToken{TokenAddress: wethToken, Meta: env.steleMeta(day0 + 10)})
	tok, _, err = env.store.LoadToken(env.ctx(), wethToken.Hex())
	require.NoError(t, err)
	assert.False(t, tok.IsInvestable)
	assert.Equal(t, day0+10, tok.UpdatedTimestamp)

	env.process(&events.AddToken{TokenAddress: wethToken, Meta: env.steleMeta(day0 + 20)})
	tok, _, err = env.store.LoadToken(env.ctx(), wethToken.Hex())
	require.NoError(t, err)
	assert.True(t, tok.IsInvestable)
	assert.Equal(t, "WETH", tok.Symbol)
}

func TestAddToken_WithoutDecimalsIsNotAdmitted(t *testing.T) {
	env := newTestEnv(t)
	env.process(&events.AddToken{TokenAddress: altToken, Meta: env.steleMeta(day0)})
	assert.Equal(t, 0, env.backend.EntityCount(storage.KindToken))
}

// symbolRevertingReader answers decimals but reverts on symbol
type symbolRevertingReader struct {
	*adapter.FakeReader
}

func (r symbolRevertingReader) Symbol(ctx context.Context, token common.Address) (string, error) {
	return "", adapter.ErrReverted
}

func TestAddToken_SymbolFallsBackToUnknown(t *testing.T) {
	env := newTestEnv(t)
	env.reader.SetToken(altToken, "ALT", 8)
	env.engine.reader = symbolRevertingReader{env.reader}

	env.process(&events.AddToken{TokenAddress: altToken, Meta: env.steleMeta(day0)})

	tok, ok, err := env.store.LoadToken(env.ctx(), altToken.Hex())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, unknownSymbol, tok.Symbol)
	assert.Equal(t, uint8(8), tok.Decimals)
}

func TestRemoveToken_UnknownIsDropped(t *testing.T) {
	env := newTestEnv(t)
	env.process(&events.RemoveToken{TokenAddress: altToken, Meta: env.steleMeta(day0)})
	assert.Equal(t, 0, env.backend.EntityCount(storage.KindToken))
}

func TestCreate_AllocatesChallengeAndSlot(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapStele()
	env.createChallenge(1, uint8(types.OneMonth), day0+50)

	c := env.challenge("1")
	assert.Equal(t, types.OneMonth, c.ChallengeType)
	assert.Equal(t, day0+50, c.StartTime)
	assert.Equal(t, day0+50+2592000, c.EndTime)
	assert.True(t, c.IsActive)
	assert.True(t, c.SeedMoney.Equal(dec("1000")))
	assert.True(t, c.EntryFee.Equal(dec("10")))
	assert.Zero(t, c.InvestorCounter)

	assert.Equal(t, uint64(1), env.steleState().ChallengeCounter)

	slot := env.active().Slot(types.OneMonth)
	assert.Equal(t, "1", slot.ChallengeID)
	assert.Equal(t, day0+50, slot.StartTime)
	assert.False(t, slot.IsCompleted)

	assert.Equal(t, 1, env.backend.SnapshotCount(types.KindChallenge))
}

func TestCreate_OverwritesOnlyItsOwnSlot(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapStele()
	env.createChallenge(1, uint8(types.OneWeek), day0)
	env.createChallenge(2, uint8(types.OneYear), day0+1)
	env.join(1, alice, 1000, day0+2)

	before := env.active()
	weekSlot := *before.Slot(types.OneWeek)

	env.createChallenge(3, uint8(types.OneYear), day0+3)

	after := env.active()
	assert.Equal(t, weekSlot, *after.Slot(types.OneWeek))
	assert.Equal(t, "3", after.Slot(types.OneYear).ChallengeID)
	assert.Equal(t, day0+3, after.Slot(types.OneYear).StartTime)
	for _, ct := range []types.ChallengeType{types.OneMonth, types.ThreeMonths, types.SixMonths} {
		assert.Equal(t, "0", after.Slot(ct).ChallengeID)
	}
}

func TestCreate_UnknownTypeStillCreatesChallenge(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapStele()
	slotsBefore := env.active()

	env.createChallenge(4, 9, day0)

	c := env.challenge("4")
	assert.Equal(t, c.StartTime, c.EndTime)
	assert.Equal(t, uint64(1), env.steleState().ChallengeCounter)
	assert.Equal(t, slotsBefore, env.active())
}

func TestCreate_DuplicateKeepsFirstChallenge(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapStele()
	env.createChallenge(5, uint8(types.OneWeek), day0)
	env.join(5, alice, 1000, day0+1)

	env.createChallenge(5, uint8(types.OneYear), day0+2)

	c := env.challenge("5")
	assert.Equal(t, types.OneWeek, c.ChallengeType)
	assert.Equal(t, uint64(1), c.InvestorCounter)
	assert.Equal(t, uint64(1), env.steleState().ChallengeCounter)
}

func TestJoin_SeedValuation(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapStele()
	env.createChallenge(1, uint8(types.OneWeek), day0)
	env.join(1, alice, 1000, day0+10)

	inv := env.investor("1", alice)
	assert.Equal(t, []string{usdToken.Hex()}, inv.Tokens)
	require.Len(t, inv.TokensAmount, 1)
	assert.Equal(t, "1000000000", inv.TokensAmount[0].String())
	assert.True(t, inv.SeedMoneyUSD.Equal(dec("1000")))
	assert.True(t, inv.CurrentUSD.IsZero())
	assert.True(t, inv.ProfitUSD.Equal(dec("-1000")))
	assert.True(t, inv.ProfitRatio.Equal(dec("-1")))
	assert.Equal(t, day0+10, inv.CreatedAtTimestamp)

	c := env.challenge("1")
	assert.Equal(t, uint64(1), c.InvestorCounter)
	assert.True(t, c.RewardAmountUSD.Equal(dec("10")))

	slot := env.active().Slot(types.OneWeek)
	assert.Equal(t, uint64(1), slot.InvestorCounter)
	assert.True(t, slot.RewardAmountUSD.Equal(dec("10")))

	assert.Equal(t, uint64(1), env.steleState().InvestorCounter)
	assert.Equal(t, 1, env.backend.SnapshotCount(types.KindInvestor))
}

func TestJoin_UnresolvableDecimalsDegradeToZero(t *testing.T) {
	env := newTestEnv(t)
	env.process(&events.SteleCreated{
		Owner:     alice,
		USDToken:  altToken,
		SeedMoney: big.NewInt(1000),
		EntryFee:  big.NewInt(10),
		MaxAssets: big.NewInt(10),
		Meta:      env.steleMeta(day0),
	})
	env.createChallenge(1, uint8(types.OneWeek), day0)
	env.join(1, alice, 1000, day0+1)

	inv := env.investor("1", alice)
	require.Len(t, inv.TokensAmount, 1)
	assert.True(t, inv.TokensAmount[0].IsZero())
	assert.Equal(t, uint64(1), env.challenge("1").InvestorCounter)
}

func TestJoin_UnknownChallengeCreatesNoInvestor(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapStele()
	env.join(42, alice, 1000, day0)

	assert.Equal(t, 0, env.backend.EntityCount(storage.KindInvestor))
	assert.Equal(t, uint64(1), env.steleState().InvestorCounter)
}

func setupInvestor(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	env.bootstrapStele()
	env.reader.SetToken(wethToken, "WETH", 18)
	env.createChallenge(1, uint8(types.OneWeek), day0)
	env.join(1, alice, 1000, day0+1)
	return env
}

func (env *testEnv) swap(ts uint64) {
	env.t.Helper()
	env.process(&events.Swap{
		ChallengeID: big.NewInt(1),
		User:        alice,
		FromAsset:   usdToken,
		ToAsset:     wethToken,
		FromAmount:  units(500, 6),
		ToAmount:    big.NewInt(1),
		Meta:        env.steleMeta(ts),
	})
}

func TestSwap_RevaluesPortfolio(t *testing.T) {
	env := setupInvestor(t)
	env.prices.set(usdToken, "0.0005")
	env.prices.set(wethToken, "1")
	env.reader.SetPortfolio(big.NewInt(1), alice, &adapter.Portfolio{
		Tokens:  []common.Address{usdToken, wethToken},
		Amounts: []*big.Int{units(500, 6), new(big.Int).Div(units(1, 18), big.NewInt(4))},
	})

	env.swap(day0 + secondsPerDay)

	inv := env.investor("1", alice)
	assert.Equal(t, []string{usdToken.Hex(), wethToken.Hex()}, inv.Tokens)
	require.Len(t, inv.TokensAmount, 2)
	assert.True(t, inv.TokensAmount[0].Equal(dec("500")))
	assert.True(t, inv.TokensAmount[1].Equal(dec("0.25")))
	assert.True(t, inv.CurrentUSD.Equal(dec("1000")), "current=%s", inv.CurrentUSD)
	assert.True(t, inv.ProfitUSD.IsZero())
	assert.True(t, inv.ProfitRatio.IsZero())
	assert.Equal(t, day0+secondsPerDay, inv.UpdatedAtTimestamp)
	assert.Equal(t, 1, env.prices.ethCalls, "ETH price is read once per swap")

	// a new day gets its own investor snapshot
	assert.Equal(t, 2, env.backend.SnapshotCount(types.KindInvestor))
}

func TestSwap_UnpricedAndUndecimaledTokensContributeZero(t *testing.T) {
	env := setupInvestor(t)
	env.prices.set(usdToken, "0.0005")
	env.reader.SetPortfolio(big.NewInt(1), alice, &adapter.Portfolio{
		Tokens:  []common.Address{usdToken, altToken, wethToken},
		Amounts: []*big.Int{units(500, 6), big.NewInt(123), units(1, 18)},
	})

	env.swap(day0 + 2)

	inv := env.investor("1", alice)
	require.Len(t, inv.TokensAmount, 3)
	assert.True(t, inv.TokensAmount[1].IsZero(), "token without decimals")
	assert.True(t, inv.TokensAmount[2].Equal(dec("1")))
	assert.True(t, inv.CurrentUSD.Equal(dec("500")), "current=%s", inv.CurrentUSD)
	assert.True(t, inv.ProfitUSD.Equal(dec("-500")))
	assert.True(t, inv.ProfitRatio.Equal(dec("-0.5")))
}

func TestSwap_PortfolioRevertLeavesInvestorUntouched(t *testing.T) {
	env := setupInvestor(t)
	before := env.investor("1", alice)

	env.swap(day0 + 2)

	assert.Equal(t, before, env.investor("1", alice))
}

func TestSwap_ValuedThroughPoolResolver(t *testing.T) {
	env := setupInvestor(t)

	// USD token is token0 at 6 decimals, WETH token1 at 18 decimals.
	// sqrtPriceX96 = 20000 * 2^96 prices one whole USD at 0.0004 ETH, ETH at 2500 USD.
	pool := common.HexToAddress("0x9001")
	env.reader.SetPool(usdToken, wethToken, 3000, pool, &adapter.FakePool{
		Token0:       usdToken,
		Token1:       wethToken,
		Liquidity:    units(1, 18),
		SqrtPriceX96: new(big.Int).Lsh(big.NewInt(20000), 96),
	})
	resolver := pricing.NewResolver(env.reader, pricing.Config{
		WETH:     wethToken,
		USDC:     usdToken,
		FeeTiers: []uint32{3000},
	})
	defer resolver.Stop()
	env.engine.prices = resolver

	env.reader.SetPortfolio(big.NewInt(1), alice, &adapter.Portfolio{
		Tokens:  []common.Address{usdToken, wethToken},
		Amounts: []*big.Int{units(500, 6), new(big.Int).Mul(big.NewInt(4), pow10(17))},
	})
	env.swap(day0 + 2)

	inv := env.investor("1", alice)
	assert.True(t, inv.CurrentUSD.Equal(dec("1500")), "current=%s", inv.CurrentUSD)
	assert.True(t, inv.ProfitUSD.Equal(dec("500")))
	assert.True(t, inv.ProfitRatio.Equal(dec("0.5")))
}

func TestReward_CompletesSlotOnly(t *testing.T) {
	env := setupInvestor(t)
	steleBefore := env.steleState()
	challengeBefore := env.challenge("1")

	env.process(
		&events.Reward{ChallengeID: big.NewInt(1), User: alice, RewardAmount: big.NewInt(7_000_000), Meta: env.steleMeta(day0 + 3)},
		&events.Reward{ChallengeID: big.NewInt(1), User: bob, RewardAmount: big.NewInt(3_000_000), Meta: env.steleMeta(day0 + 3)},
	)

	assert.True(t, env.active().Slot(types.OneWeek).IsCompleted)
	assert.Equal(t, challengeBefore, env.challenge("1"))
	assert.True(t, env.steleState().TotalRewardUSD.Equal(steleBefore.TotalRewardUSD), "reward amounts are not valued")
}

func TestReward_UnknownChallengeIsDropped(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapStele()
	env.process(&events.Reward{ChallengeID: big.NewInt(8), User: alice, RewardAmount: big.NewInt(7), Meta: env.steleMeta(day0)})

	assert.True(t, env.steleState().TotalRewardUSD.IsZero())
}
