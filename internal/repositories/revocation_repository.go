package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/socialnet/backend/internal/db"
)

// PostgresRevocationStore persists revoked refresh token ids to PostgreSQL.
type PostgresRevocationStore struct {
	pool db.Pool
}

// NewPostgresRevocationStore constructs a revocation store backed by PostgreSQL.
func NewPostgresRevocationStore(pool db.Pool) *PostgresRevocationStore {
	return &PostgresRevocationStore{pool: pool}
}

// Revoke records the token id until its natural expiry. Expired rows are pruned
// opportunistically on every call.
func (s *PostgresRevocationStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO revoked_refresh_tokens (token_id, expires_at)
        VALUES ($1, $2)
        ON CONFLICT (token_id)
        DO UPDATE SET expires_at = EXCLUDED.expires_at
    `, tokenID, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert revoked token: %w", err)
	}

	if _, err := conn.Exec(ctx, `DELETE FROM revoked_refresh_tokens WHERE expires_at <= now()`); err != nil {
		return fmt.Errorf("prune revoked tokens: %w", err)
	}

	return nil
}

// IsRevoked reports whether the token id was revoked and has not yet expired.
func (s *PostgresRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var revoked bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM revoked_refresh_tokens
            WHERE token_id = $1 AND expires_at > now()
        )
    `, tokenID).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("select revoked token: %w", err)
	}

	return revoked, nil
}

// PostgresStore combines the PostgreSQL repositories behind the Store interface.
type PostgresStore struct {
	*PostgresUserRepository
	*PostgresRevocationStore
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		PostgresUserRepository:  NewPostgresUserRepository(pool),
		PostgresRevocationStore: NewPostgresRevocationStore(pool),
		pool:                    pool,
	}
}

// Ping checks that PostgreSQL is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool.
func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

var _ RevocationRepository = (*PostgresRevocationStore)(nil)
var _ Store = (*PostgresStore)(nil)
