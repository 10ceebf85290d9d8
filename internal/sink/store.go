// Package sink persists terminal identifier outcomes: successes into
// the relational store, failures into the append-only audit artifacts.
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx via database/sql

	"github.com/hazyhaar/regscan/internal/lookup"
	"github.com/hazyhaar/regscan/internal/retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS doctors (
	cmp         VARCHAR(10) PRIMARY KEY,
	status      TEXT        NOT NULL,
	raw_status  TEXT        NOT NULL DEFAULT '',
	specialties TEXT        NOT NULL DEFAULT '[]',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertSQL = `
INSERT INTO doctors (cmp, status, raw_status, specialties, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (cmp) DO UPDATE SET
	status      = EXCLUDED.status,
	raw_status  = EXCLUDED.raw_status,
	specialties = EXCLUDED.specialties,
	updated_at  = now()`

// storeWriteRetries bounds re-attempts for one outcome write before the
// failure is surfaced to the audit artifacts.
const storeWriteRetries = 3

// execer is the slice of database/sql the store writes through.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store owns the relational connection. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	exec   execer
	logger *slog.Logger
}

// OpenStore connects, verifies connectivity, and ensures the schema.
// An error here is fatal to the run: no browser work starts without a
// reachable store.
func OpenStore(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sink: open store: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: ping store: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: ensure schema: %w", err)
	}

	return &Store{db: db, exec: db, logger: logger}, nil
}

// UpsertResult writes the latest result for an identifier,
// last-write-wins. Transient write failures are retried a bounded
// number of times with short backoff before the error is returned.
func (s *Store) UpsertResult(ctx context.Context, id lookup.Identifier, res *lookup.Result) error {
	specialties := res.Specialties
	if specialties == nil {
		specialties = []string{} // serialize as [], matching the column default
	}
	specs, err := json.Marshal(specialties)
	if err != nil {
		return fmt.Errorf("sink: marshal specialties: %w", err)
	}

	var lastErr error
	for i := 1; i <= storeWriteRetries; i++ {
		_, lastErr = s.exec.ExecContext(ctx, upsertSQL,
			string(id), string(res.Status), res.RawStatus, string(specs))
		if lastErr == nil {
			return nil
		}
		s.logger.Warn("sink: upsert failed",
			"cmp", string(id), "try", i, "error", lastErr)
		if i < storeWriteRetries {
			if err := retry.Sleep(ctx, time.Duration(100*i)*time.Millisecond); err != nil {
				break
			}
		}
	}
	return fmt.Errorf("sink: upsert %s: %w", id, lastErr)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
