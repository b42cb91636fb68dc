package api

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// PostgresIdempotencyStore keeps idempotency keys in the ledger database so
// replays survive restarts.
type PostgresIdempotencyStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgresIdempotencyStore creates a store over db. Call Init first.
func NewPostgresIdempotencyStore(db *sql.DB, ttl time.Duration) *PostgresIdempotencyStore {
	return &PostgresIdempotencyStore{db: db, ttl: ttl}
}

// Init creates the idempotency table.
func (s *PostgresIdempotencyStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			status_code INTEGER NOT NULL,
			content_type TEXT NOT NULL,
			body BYTEA NOT NULL,
			request_hash TEXT NOT NULL DEFAULT '',
			cached_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		ALTER TABLE idempotency_keys ADD COLUMN IF NOT EXISTS request_hash TEXT NOT NULL DEFAULT ''`)
	return err
}

func (s *PostgresIdempotencyStore) Check(ctx context.Context, key string) (*CachedResponse, bool) {
	var resp CachedResponse
	err := s.db.QueryRowContext(ctx,
		`SELECT status_code, content_type, body, request_hash, cached_at FROM idempotency_keys WHERE key = $1`,
		key,
	).Scan(&resp.StatusCode, &resp.ContentType, &resp.Body, &resp.RequestHash, &resp.CachedAt)
	if err != nil {
		return nil, false
	}
	if time.Since(resp.CachedAt) > s.ttl {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
		return nil, false
	}
	return &resp, true
}

func (s *PostgresIdempotencyStore) Set(ctx context.Context, key string, resp CachedResponse) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, status_code, content_type, body, request_hash, cached_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (key) DO UPDATE SET status_code = $2, content_type = $3, body = $4, request_hash = $5, cached_at = NOW()`,
		key, resp.StatusCode, resp.ContentType, resp.Body, resp.RequestHash,
	)
	if err != nil {
		// Replay is best effort; the ledger still rejects a duplicate slot.
		slog.Warn("idempotency: failed to store key", "key", key, "error", err)
	}
}

// Cleanup removes keys older than the TTL.
func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE cached_at < $1`, time.Now().Add(-s.ttl))
	return err
}
