package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/stele-indexer/internal/logging"
	"github.com/stele-indexer/internal/models"
	"github.com/stele-indexer/internal/retry"
)

// ErrEventLogClosed is returned by Append after Close
var ErrEventLogClosed = errors.New("event log closed")

// EventLog is the append-only audit trail of handled events.
// Appends are best effort and never gate aggregation.
type EventLog interface {
	Append(ctx context.Context, event *models.RawEvent) error
	Close(ctx context.Context) error
}

// MemoryEventLog keeps raw events in a slice
type MemoryEventLog struct {
	mu     sync.RWMutex
	events []*models.RawEvent
}

// NewMemoryEventLog creates an empty in-memory event log
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{}
}

func (l *MemoryEventLog) Append(ctx context.Context, event *models.RawEvent) error {
	e := *event
	l.mu.Lock()
	l.events = append(l.events, &e)
	l.mu.Unlock()
	return nil
}

func (l *MemoryEventLog) Close(ctx context.Context) error {
	return nil
}

// Events returns a copy of the appended events in order
func (l *MemoryEventLog) Events() []*models.RawEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*models.RawEvent(nil), l.events...)
}

// Len returns the number of appended events
func (l *MemoryEventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// rawEventSink writes one batch of raw events
type rawEventSink interface {
	insert(ctx context.Context, rows []*models.RawEvent) error
}

// EventLogConfig tunes the batched ClickHouse writer
type EventLogConfig struct {
	BatchMaxRows  int
	BatchInterval time.Duration
	QueueSize     int
	Retry         *retry.RetryConfig
}

func (c *EventLogConfig) withDefaults() EventLogConfig {
	out := EventLogConfig{}
	if c != nil {
		out = *c
	}
	if out.BatchMaxRows <= 0 {
		out.BatchMaxRows = 500
	}
	if out.BatchInterval <= 0 {
		out.BatchInterval = time.Second
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 4096
	}
	if out.Retry == nil {
		out.Retry = &retry.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		}
	}
	return out
}

// ClickHouseEventLog buffers raw events and inserts them into the
// raw_events table in batches, flushing on size or interval.
type ClickHouseEventLog struct {
	sink rawEventSink
	cfg  EventLogConfig

	mu     sync.RWMutex
	closed bool
	inCh   chan *models.RawEvent
	done   chan struct{}
}

// NewClickHouseEventLog starts a batched writer over db
func NewClickHouseEventLog(db *ClickHouseDB, cfg *EventLogConfig) *ClickHouseEventLog {
	return newBatchedEventLog(&clickHouseSink{conn: db.Conn()}, cfg)
}

func newBatchedEventLog(sink rawEventSink, cfg *EventLogConfig) *ClickHouseEventLog {
	c := cfg.withDefaults()
	l := &ClickHouseEventLog{
		sink: sink,
		cfg:  c,
		inCh: make(chan *models.RawEvent, c.QueueSize),
		done: make(chan struct{}),
	}
	go l.loop()
	return l
}

// Append queues event for the next batch. It blocks while the queue is full.
func (l *ClickHouseEventLog) Append(ctx context.Context, event *models.RawEvent) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrEventLogClosed
	}
	e := *event
	select {
	case l.inCh <- &e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes queued events and stops the writer
func (l *ClickHouseEventLog) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.inCh)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *ClickHouseEventLog) loop() {
	defer close(l.done)

	batch := make([]*models.RawEvent, 0, l.cfg.BatchMaxRows)
	ticker := time.NewTicker(l.cfg.BatchInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		err := retry.Do(context.Background(), l.cfg.Retry, func(ctx context.Context, attempt int) error {
			return l.sink.insert(ctx, batch)
		})
		if err != nil {
			logging.WithError(err).WithFields(map[string]interface{}{
				"rows":      len(batch),
				"first_key": batch[0].Key,
			}).Error("Failed to write raw event batch")
		}
		batch = make([]*models.RawEvent, 0, l.cfg.BatchMaxRows)
	}

	for {
		select {
		case e, ok := <-l.inCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= l.cfg.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

type clickHouseSink struct {
	conn driver.Conn
}

func (s *clickHouseSink) insert(ctx context.Context, rows []*models.RawEvent) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO raw_events (
			key,
			name,
			contract,
			block_number,
			block_timestamp,
			transaction_hash,
			log_index,
			payload
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare raw_events batch: %w", err)
	}

	for _, r := range rows {
		if err := batch.Append(
			r.Key,
			r.Name,
			r.Contract,
			r.BlockNumber,
			r.Time(),
			r.TransactionHash,
			r.LogIndex,
			string(r.Payload),
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append raw event %s: %w", r.Key, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send raw_events batch: %w", err)
	}
	return nil
}
