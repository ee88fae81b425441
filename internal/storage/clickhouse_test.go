package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stele-indexer/internal/config"
	"github.com/stele-indexer/internal/models"
)

func TestNewClickHouseDB(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.ClickHouseConfig{
		Host:     "localhost",
		Port:     "9000",
		Database: "stele_indexer",
		User:     "default",
		Password: "clickhouse_dev_password",
	}

	db, err := NewClickHouseDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
		return
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	ctx := testContext(t)
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	require.NoError(t, RunClickHouseMigrations(ctx, db, "../../migrations/clickhouse"))

	log := NewClickHouseEventLog(db, &EventLogConfig{BatchMaxRows: 1, BatchInterval: 50 * time.Millisecond})
	require.NoError(t, log.Append(ctx, &models.RawEvent{
		Key:            "0xintegration",
		Name:           "Create",
		BlockNumber:    1,
		BlockTimestamp: 1700000000,
		Payload:        json.RawMessage(`{}`),
	}))
	require.NoError(t, log.Close(ctx))
}

func TestClickHouseOptions(t *testing.T) {
	opts := clickHouseOptions(&config.ClickHouseConfig{
		Host:     "clickhouse",
		Port:     "9000",
		Database: "stele_indexer",
		User:     "indexer",
		Password: "secret",
	})

	assert.Equal(t, []string{"clickhouse:9000"}, opts.Addr)
	assert.Equal(t, "stele_indexer", opts.Auth.Database)
	assert.Equal(t, "indexer", opts.Auth.Username)
	require.NotNil(t, opts.Compression)
	assert.Equal(t, 1, opts.Settings["insert_deduplicate"])
}

func TestSplitSQLStatements(t *testing.T) {
	content := `
-- leading comment
CREATE TABLE a (
    x UInt64
) ENGINE = MergeTree ORDER BY x;

-- second
CREATE TABLE b (y String) ENGINE = Log;
SELECT 1`

	stmts := splitSQLStatements(content)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.NotContains(t, stmts[0], ";")
	assert.Equal(t, "CREATE TABLE b (y String) ENGINE = Log", stmts[1])
	assert.Equal(t, "SELECT 1", stmts[2])
}

type recordingExecer struct {
	stmts []string
}

func (r *recordingExecer) Exec(ctx context.Context, query string, args ...interface{}) error {
	r.stmts = append(r.stmts, query)
	return nil
}

func TestRunClickHouseMigrationsAppliesRepoFiles(t *testing.T) {
	exec := &recordingExecer{}
	require.NoError(t, RunClickHouseMigrations(testContext(t), exec, "../../migrations/clickhouse"))
	require.NotEmpty(t, exec.stmts)
	assert.Contains(t, exec.stmts[0], "raw_events")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
