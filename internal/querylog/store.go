package querylog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/postgres"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS query_log (
    id          UUID PRIMARY KEY,
    request_id  TEXT NOT NULL DEFAULT '',
    source      TEXT NOT NULL,
    query       TEXT NOT NULL,
    condition   JSONB,
    nodes       INTEGER NOT NULL,
    depth       INTEGER NOT NULL,
    cache_hit   BOOLEAN NOT NULL,
    duration_us BIGINT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS query_log_created_at_idx ON query_log (created_at DESC);
`

var columns = []string{
	"id", "request_id", "source", "query", "condition",
	"nodes", "depth", "cache_hit", "duration_us", "error", "created_at",
}

// Store reads and writes query log entries in PostgreSQL.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a Store on db.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "querylog-store"),
	}
}

// EnsureSchema creates the query_log table and its index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating query_log schema: %w", err)
	}
	return nil
}

// InsertBatch writes entries in one transaction using COPY.
func (s *Store) InsertBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("query_log", columns...))
		if err != nil {
			return fmt.Errorf("preparing copy: %w", err)
		}
		defer stmt.Close()
		for _, e := range entries {
			var condition any
			if len(e.Condition) > 0 {
				condition = string(e.Condition)
			}
			if _, err := stmt.ExecContext(ctx,
				e.ID, e.RequestID, e.Source, e.Query, condition,
				e.Nodes, e.Depth, e.CacheHit, e.DurationUS, e.Error, e.CreatedAt,
			); err != nil {
				return fmt.Errorf("copying entry %s: %w", e.ID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("flushing copy: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("inserting %d query log entries: %w", len(entries), err)
	}
	s.logger.Debug("query log batch written", "entries", len(entries))
	return nil
}

// Recent returns the newest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, request_id, source, query, condition, nodes, depth,
		        cache_hit, duration_us, error, created_at
		   FROM query_log
		  ORDER BY created_at DESC
		  LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent queries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var condition []byte
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.Source, &e.Query, &condition, &e.Nodes, &e.Depth,
			&e.CacheHit, &e.DurationUS, &e.Error, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning query log row: %w", err)
		}
		if len(condition) > 0 {
			e.Condition = condition
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
