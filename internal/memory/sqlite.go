// File: internal/memory/sqlite.go
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS choice_memory (
    fingerprint TEXT NOT NULL,
    label       TEXT NOT NULL,
    success     INTEGER NOT NULL DEFAULT 0,
    failure     INTEGER NOT NULL DEFAULT 0,
    last_used   INTEGER NOT NULL,
    PRIMARY KEY (fingerprint, label)
)`

const sqliteUpsert = `
INSERT INTO choice_memory (fingerprint, label, success, failure, last_used)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (fingerprint, label) DO UPDATE SET
    success = MAX(choice_memory.success, excluded.success),
    failure = MAX(choice_memory.failure, excluded.failure),
    last_used = MAX(choice_memory.last_used, excluded.last_used)`

// SQLiteBackend keeps one row per fingerprint and label in a local SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand sqlite path %q: %w", path, err)
	}

	dsn := filepath.Clean(expanded) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create choice_memory table: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Load(ctx context.Context) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fingerprint, label, success, failure, last_used FROM choice_memory`)
	if err != nil {
		return nil, fmt.Errorf("query choice_memory: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var fp, label string
		var rec Record
		var lastUsed int64
		if err := rows.Scan(&fp, &label, &rec.Success, &rec.Failure, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan choice_memory row: %w", err)
		}
		rec.LastUsed = time.Unix(0, lastUsed).UTC()
		if snap[fp] == nil {
			snap[fp] = make(map[string]Record)
		}
		snap[fp][label] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate choice_memory rows: %w", err)
	}
	return snap, nil
}

func (s *SQLiteBackend) Save(ctx context.Context, snap Snapshot, key Key) error {
	if !key.IsZero() {
		rec, ok := snap[key.Fingerprint][key.Label]
		if !ok {
			return nil
		}
		_, err := s.db.ExecContext(ctx, sqliteUpsert, key.Fingerprint, key.Label, rec.Success, rec.Failure, rec.LastUsed.UnixNano())
		if err != nil {
			return fmt.Errorf("upsert choice_memory row: %w", err)
		}
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for fp, labels := range snap {
		for label, rec := range labels {
			if _, err := tx.ExecContext(ctx, sqliteUpsert, fp, label, rec.Success, rec.Failure, rec.LastUsed.UnixNano()); err != nil {
				return fmt.Errorf("upsert choice_memory row: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
