// File: internal/memory/postgres.go
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the backend can be tested against pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS choice_memory (
    fingerprint TEXT NOT NULL,
    label TEXT NOT NULL,
    success BIGINT NOT NULL DEFAULT 0,
    failure BIGINT NOT NULL DEFAULT 0,
    last_used TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (fingerprint, label)
);`

const pgSelect = `SELECT fingerprint, label, success, failure, last_used FROM choice_memory;`

const pgUpsert = `
INSERT INTO choice_memory (fingerprint, label, success, failure, last_used)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (fingerprint, label) DO UPDATE SET
    success = GREATEST(choice_memory.success, EXCLUDED.success),
    failure = GREATEST(choice_memory.failure, EXCLUDED.failure),
    last_used = GREATEST(choice_memory.last_used, EXCLUDED.last_used);`

// PostgresBackend stores choice memory in a shared PostgreSQL table. Counters are merged
// with GREATEST so concurrent writers never move them backwards.
type PostgresBackend struct {
	pool    DBPool
	closeFn func()
	log     *zap.Logger
}

// NewPostgresBackend verifies the connection and creates the table.
func NewPostgresBackend(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("failed to create choice_memory table: %w", err)
	}
	return &PostgresBackend{pool: pool, log: logger.Named("memory_pg")}, nil
}

// OpenPostgres connects a pgxpool to dsn and wraps it in a backend that closes the pool.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	b, err := NewPostgresBackend(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	b.closeFn = pool.Close
	return b, nil
}

func (p *PostgresBackend) Load(ctx context.Context) (Snapshot, error) {
	rows, err := p.pool.Query(ctx, pgSelect)
	if err != nil {
		return nil, fmt.Errorf("failed to query choice_memory: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var fp, label string
		var success, failure int64
		var lastUsed time.Time
		if err := rows.Scan(&fp, &label, &success, &failure, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan choice_memory row: %w", err)
		}
		if snap[fp] == nil {
			snap[fp] = make(map[string]Record)
		}
		snap[fp][label] = Record{Success: int(success), Failure: int(failure), LastUsed: lastUsed.UTC()}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate choice_memory rows: %w", err)
	}
	return snap, nil
}

func (p *PostgresBackend) Save(ctx context.Context, snap Snapshot, key Key) error {
	if !key.IsZero() {
		rec, ok := snap[key.Fingerprint][key.Label]
		if !ok {
			return nil
		}
		if _, err := p.pool.Exec(ctx, pgUpsert, key.Fingerprint, key.Label, int64(rec.Success), int64(rec.Failure), rec.LastUsed); err != nil {
			return fmt.Errorf("failed to upsert choice: %w", err)
		}
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			p.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	for fp, labels := range snap {
		for label, rec := range labels {
			if _, err := tx.Exec(ctx, pgUpsert, fp, label, int64(rec.Success), int64(rec.Failure), rec.LastUsed); err != nil {
				return fmt.Errorf("failed to upsert choice: %w", err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Close() error {
	if p.closeFn != nil {
		p.closeFn()
	}
	return nil
}
