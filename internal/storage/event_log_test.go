package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stele-indexer/internal/models"
	"github.com/stele-indexer/internal/retry"
)

type fakeSink struct {
	mu       sync.Mutex
	batches  [][]string
	failures int
}

func (f *fakeSink) insert(ctx context.Context, rows []*models.RawEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("clickhouse unavailable")
	}
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	f.batches = append(f.batches, keys)
	return nil
}

func (f *fakeSink) snapshot() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

func fastRetry() *retry.RetryConfig {
	return &retry.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func rawEvent(i int) *models.RawEvent {
	return &models.RawEvent{Key: fmt.Sprintf("0x%02x", i), Name: "Swap", BlockNumber: uint64(i)}
}

func TestMemoryEventLogKeepsOrder(t *testing.T) {
	log := NewMemoryEventLog()
	ctx := testContext(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, log.Append(ctx, rawEvent(i)))
	}
	events := log.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "0x00", events[0].Key)
	assert.Equal(t, "0x02", events[2].Key)
	assert.Equal(t, 3, log.Len())
}

func TestBatchedEventLogFlushesOnSize(t *testing.T) {
	sink := &fakeSink{}
	log := newBatchedEventLog(sink, &EventLogConfig{BatchMaxRows: 2, BatchInterval: time.Hour, Retry: fastRetry()})
	ctx := testContext(t)

	for i := 0; i < 4; i++ {
		require.NoError(t, log.Append(ctx, rawEvent(i)))
	}
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, log.Close(ctx))

	batches := sink.snapshot()
	assert.Equal(t, []string{"0x00", "0x01"}, batches[0])
	assert.Equal(t, []string{"0x02", "0x03"}, batches[1])
}

func TestBatchedEventLogFlushesOnInterval(t *testing.T) {
	sink := &fakeSink{}
	log := newBatchedEventLog(sink, &EventLogConfig{BatchMaxRows: 100, BatchInterval: 10 * time.Millisecond, Retry: fastRetry()})
	ctx := testContext(t)
	defer func() { _ = log.Close(ctx) }()

	require.NoError(t, log.Append(ctx, rawEvent(1)))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatchedEventLogCloseDrainsQueue(t *testing.T) {
	sink := &fakeSink{}
	log := newBatchedEventLog(sink, &EventLogConfig{BatchMaxRows: 100, BatchInterval: time.Hour, Retry: fastRetry()})
	ctx := testContext(t)

	require.NoError(t, log.Append(ctx, rawEvent(1)))
	require.NoError(t, log.Append(ctx, rawEvent(2)))
	require.NoError(t, log.Close(ctx))

	batches := sink.snapshot()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)

	assert.ErrorIs(t, log.Append(ctx, rawEvent(3)), ErrEventLogClosed)
	assert.NoError(t, log.Close(ctx))
}

func TestBatchedEventLogRetriesFailedInsert(t *testing.T) {
	sink := &fakeSink{failures: 2}
	log := newBatchedEventLog(sink, &EventLogConfig{BatchMaxRows: 1, BatchInterval: time.Hour, Retry: fastRetry()})
	ctx := testContext(t)

	require.NoError(t, log.Append(ctx, rawEvent(7)))
	require.NoError(t, log.Close(ctx))

	batches := sink.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"0x07"}, batches[0])
}

func TestAppendCopiesEvent(t *testing.T) {
	log := NewMemoryEventLog()
	e := rawEvent(1)
	require.NoError(t, log.Append(context.Background(), e))
	e.Key = "mutated"
	assert.Equal(t, "0x01", log.Events()[0].Key)
}
