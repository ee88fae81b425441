package storage

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/stele-indexer/internal/config"
)

// ClickHouseDB holds the connection behind the raw event log. Only the
// batched writer and the migrator use it, so the pool stays small.
type ClickHouseDB struct {
	conn driver.Conn
}

// clickHouseOptions maps config onto driver options
func clickHouseOptions(cfg *config.ClickHouseConfig) *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{net.JoinHostPort(cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time":    60,
			"insert_deduplicate":    1,
			"max_insert_block_size": 100000,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     2,
		MaxIdleConns:     1,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}
}

// NewClickHouseDB opens and pings the raw event log database
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(clickHouseOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("open clickhouse %s: %w", cfg.Host, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse %s: %w", cfg.Host, err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

func (db *ClickHouseDB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Conn exposes the driver connection for batch inserts
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Exec runs one DDL or DML statement; migrations go through it
func (db *ClickHouseDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	return db.conn.Exec(ctx, query, args...)
}
