// Package storage persists the indexer's aggregates, snapshots, raw event
// log and replay guard.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stele-indexer/internal/config"
	apperrors "github.com/stele-indexer/internal/errors"
	"github.com/stele-indexer/internal/types"
)

// PostgresDB wraps the pgxpool connection
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB creates a new Postgres database connection
func NewPostgresDB(cfg *config.PostgresConfig) (*PostgresDB, error) {
	connString := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable pool_max_conns=%d",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.MaxConnections,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections) // #nosec G115 - MaxConnections is validated in config
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend stores entity bodies as JSONB rows. Entities live in
// `entities`, write-once snapshots in `snapshots`, checkpoints in
// `sync_checkpoints`.
type PostgresBackend struct {
	db   *PostgresDB
	q    querier
	inTx bool
}

// NewPostgresBackend creates a backend over db
func NewPostgresBackend(db *PostgresDB) *PostgresBackend {
	return &PostgresBackend{db: db, q: db.pool}
}

// NewPostgresStore returns a Store persisting to db
func NewPostgresStore(db *PostgresDB) *Store {
	return NewStore(NewPostgresBackend(db))
}

func (p *PostgresBackend) Get(ctx context.Context, kind Kind, id string) ([]byte, bool, error) {
	var body []byte
	err := p.q.QueryRow(ctx,
		`SELECT body FROM entities WHERE kind = $1 AND id = $2`,
		string(kind), id,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewDatabaseError(fmt.Sprintf("get %s", kind), err)
	}
	return body, true, nil
}

func (p *PostgresBackend) Put(ctx context.Context, kind Kind, id string, body []byte) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO entities (kind, id, body, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (kind, id) DO UPDATE SET
			body = EXCLUDED.body,
			updated_at = NOW()
	`, string(kind), id, body)
	if err != nil {
		return apperrors.NewDatabaseError(fmt.Sprintf("put %s", kind), err)
	}
	return nil
}

func (p *PostgresBackend) PutIfAbsent(ctx context.Context, kind Kind, id string, body []byte) (bool, error) {
	tag, err := p.q.Exec(ctx, `
		INSERT INTO entities (kind, id, body, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (kind, id) DO NOTHING
	`, string(kind), id, body)
	if err != nil {
		return false, apperrors.NewDatabaseError(fmt.Sprintf("create %s", kind), err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresBackend) GetSnapshot(ctx context.Context, kind types.EntityKind, id string) ([]byte, bool, error) {
	var body []byte
	err := p.q.QueryRow(ctx,
		`SELECT body FROM snapshots WHERE kind = $1 AND id = $2`,
		string(kind), id,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewDatabaseError(fmt.Sprintf("get %s snapshot", kind), err)
	}
	return body, true, nil
}

func (p *PostgresBackend) CreateSnapshot(ctx context.Context, kind types.EntityKind, id string, bucket uint64, body []byte) (bool, error) {
	tag, err := p.q.Exec(ctx, `
		INSERT INTO snapshots (kind, id, bucket, body, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (kind, id) DO NOTHING
	`, string(kind), id, int64(bucket), body) // #nosec G115 - day buckets fit in int64
	if err != nil {
		return false, apperrors.NewDatabaseError(fmt.Sprintf("create %s snapshot", kind), err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresBackend) LoadCheckpoint(ctx context.Context, name string) (uint64, bool, error) {
	var block int64
	err := p.q.QueryRow(ctx,
		`SELECT block_number FROM sync_checkpoints WHERE name = $1`,
		name,
	).Scan(&block)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.NewDatabaseError("load checkpoint", err)
	}
	return uint64(block), true, nil // #nosec G115 - block numbers are non-negative
}

func (p *PostgresBackend) SaveCheckpoint(ctx context.Context, name string, block uint64) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO sync_checkpoints (name, block_number, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			updated_at = NOW()
	`, name, int64(block)) // #nosec G115 - block numbers fit in int64
	if err != nil {
		return apperrors.NewDatabaseError("save checkpoint", err)
	}
	return nil
}

// RunInTx runs fn inside a database transaction
func (p *PostgresBackend) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Backend) error) error {
	if p.inTx {
		return fn(ctx, p)
	}
	err := pgx.BeginTxFunc(ctx, p.db.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &PostgresBackend{db: p.db, q: tx, inTx: true})
	})
	var catErr *apperrors.CategorizedError
	if err != nil && !errors.As(err, &catErr) {
		return apperrors.NewDatabaseError("transaction", err)
	}
	return err
}
