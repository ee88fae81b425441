package service

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stele-indexer/internal/errors"
	"github.com/stele-indexer/internal/models"
	"github.com/stele-indexer/internal/storage"
	"github.com/stele-indexer/internal/types"
)

func TestOnMutation_OncePerDay(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s := NewSnapshotScheduler()

	c := models.NewChallenge("1", types.OneWeek, day0, decimal.NewFromInt(1000), decimal.NewFromInt(10))
	require.NoError(t, store.SaveChallenge(ctx, c))

	created, err := s.OnMutation(ctx, store, types.KindChallenge, "1", day0)
	require.NoError(t, err)
	assert.True(t, created)

	c.InvestorCounter = 5
	require.NoError(t, store.SaveChallenge(ctx, c))
	created, err = s.OnMutation(ctx, store, types.KindChallenge, "1", day0+3600)
	require.NoError(t, err)
	assert.False(t, created)

	day := types.DayBucket(day0)
	snap, ok, err := store.LoadChallengeSnapshot(ctx, models.SnapshotKey("1", day))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, snap.InvestorCount, "bucket keeps the first state of the day")
	assert.Equal(t, day0, snap.Timestamp)

	created, err = s.OnMutation(ctx, store, types.KindChallenge, "1", day0+secondsPerDay)
	require.NoError(t, err)
	assert.True(t, created)
	snap, ok, err = store.LoadChallengeSnapshot(ctx, models.SnapshotKey("1", day+1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(5), snap.InvestorCount)
}

func TestOnMutation_SteleKeyedByDay(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s := NewSnapshotScheduler()

	st := &models.Stele{ID: steleAddr.Hex(), Owner: alice.Hex(), ChallengeCounter: 2}
	require.NoError(t, store.SaveStele(ctx, st))

	created, err := s.OnMutation(ctx, store, types.KindStele, st.ID, day0)
	require.NoError(t, err)
	assert.True(t, created)

	snap, ok, err := store.LoadSteleSnapshot(ctx, "19675")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(19675), snap.Date)
	assert.Equal(t, uint64(2), snap.ChallengeCounter)
}

func TestOnMutation_Investor(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s := NewSnapshotScheduler()

	inv := &models.Investor{
		ID:           models.InvestorID("3", bob),
		ChallengeID:  "3",
		Investor:     bob.Hex(),
		SeedMoneyUSD: decimal.NewFromInt(100),
		Tokens:       []string{usdToken.Hex()},
		TokensAmount: []decimal.Decimal{decimal.NewFromInt(100)},
	}
	inv.Revalue(decimal.NewFromInt(150))
	require.NoError(t, store.SaveInvestor(ctx, inv))

	created, err := s.OnMutation(ctx, store, types.KindInvestor, inv.ID, day0)
	require.NoError(t, err)
	require.True(t, created)

	snap, ok, err := store.LoadInvestorSnapshot(ctx, models.SnapshotKey(inv.ID, types.DayBucket(day0)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, inv.ID, snap.InvestorID)
	assert.True(t, snap.ProfitRatio.Equal(dec("0.5")))
}

func TestOnMutation_MissingEntity(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s := NewSnapshotScheduler()

	for _, kind := range []types.EntityKind{types.KindStele, types.KindChallenge, types.KindInvestor} {
		created, err := s.OnMutation(ctx, store, kind, "nope", day0)
		assert.False(t, created)
		assert.Equal(t, apperrors.CategoryMissingParent, apperrors.CategoryOf(err), "kind %s", kind)
	}
}

func TestOnMutation_UnknownKind(t *testing.T) {
	_, err := NewSnapshotScheduler().OnMutation(context.Background(), storage.NewMemoryStore(), types.EntityKind("vote"), "x", day0)
	assert.Equal(t, apperrors.CategoryUnknownEnumeration, apperrors.CategoryOf(err))
}

func TestEngineSnapshots_OnePerEntityPerDay(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapStele()
	env.createChallenge(1, uint8(types.OneWeek), day0)

	users := []common.Address{alice, bob, common.HexToAddress("0xC4"), common.HexToAddress("0xC5")}
	for i, u := range users {
		env.join(1, u, 1000, day0+uint64(i))
	}
	assert.Equal(t, 1, env.backend.SnapshotCount(types.KindStele))
	assert.Equal(t, 1, env.backend.SnapshotCount(types.KindChallenge))
	assert.Equal(t, len(users), env.backend.SnapshotCount(types.KindInvestor))

	env.join(1, common.HexToAddress("0xC6"), 1000, day0+secondsPerDay)
	assert.Equal(t, 2, env.backend.SnapshotCount(types.KindStele))
	assert.Equal(t, 2, env.backend.SnapshotCount(types.KindChallenge))

	snap, ok, err := env.store.LoadChallengeSnapshot(env.ctx(), models.SnapshotKey("1", types.DayBucket(day0)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, snap.InvestorCount, "first mutation of the day was the create")
}
