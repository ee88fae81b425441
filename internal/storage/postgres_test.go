package storage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stele-indexer/internal/config"
	"github.com/stele-indexer/internal/models"
	"github.com/stele-indexer/internal/types"
)

func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "stele_indexer",
		User:           "stele",
		Password:       "stele_dev_password",
		MaxConnections: 4,
	}
}

// openTestPostgres connects and migrates, skipping when Postgres is unavailable
func openTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	require.NoError(t, RunMigrations(cfg.URL(), "../../migrations/postgres"))
	return db
}

func TestNewPostgresDB(t *testing.T) {
	db := openTestPostgres(t)

	ctx := testContext(t)
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if db.Pool() == nil {
		t.Error("Pool() returned nil")
	}
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	db := openTestPostgres(t)
	store := NewPostgresStore(db)
	ctx := testContext(t)

	id := "pg-test-" + t.Name()
	challenge := models.NewChallenge(id, types.OneWeek, 1000, decimal.NewFromInt(100), decimal.NewFromInt(10))
	require.NoError(t, store.SaveChallenge(ctx, challenge))

	got, ok, err := store.LoadChallenge(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, challenge.EndTime, got.EndTime)
	assert.True(t, got.SeedMoney.Equal(challenge.SeedMoney))
}

func TestPostgresSnapshotsAreWriteOnce(t *testing.T) {
	db := openTestPostgres(t)
	store := NewPostgresStore(db)
	ctx := testContext(t)

	challenge := models.NewChallenge("pg-snap-"+t.Name(), types.OneMonth, 86400, decimal.Zero, decimal.Zero)
	first := models.NewChallengeSnapshot(challenge, 1, 86400)
	created, err := store.CreateChallengeSnapshot(ctx, first)
	require.NoError(t, err)
	if !created {
		t.Skip("snapshot left over from a previous run")
	}

	challenge.InvestorCounter = 9
	created, err = store.CreateChallengeSnapshot(ctx, models.NewChallengeSnapshot(challenge, 1, 86500))
	require.NoError(t, err)
	assert.False(t, created)

	got, ok, err := store.LoadChallengeSnapshot(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0), got.InvestorCount)
}

func TestPostgresTxRollback(t *testing.T) {
	db := openTestPostgres(t)
	store := NewPostgresStore(db)
	ctx := testContext(t)

	id := "pg-rollback-" + t.Name()
	err := store.RunInTx(ctx, func(ctx context.Context, tx *Store) error {
		if err := tx.SaveToken(ctx, &models.Token{ID: id, Symbol: "TKN"}); err != nil {
			return err
		}
		return errBoom
	})
	require.Error(t, err)

	_, ok, err := store.LoadToken(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}
