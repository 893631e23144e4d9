package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const (
	sqlCreateSessionsTable = `
        CREATE TABLE IF NOT EXISTS chromelink_sessions (
            key        TEXT PRIMARY KEY,
            value      BYTEA NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlSessionExists = `SELECT EXISTS (SELECT 1 FROM chromelink_sessions WHERE key = $1);`
	sqlSessionGet    = `SELECT value FROM chromelink_sessions WHERE key = $1;`
	sqlSessionUpsert = `
        INSERT INTO chromelink_sessions (key, value, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (key) DO UPDATE SET
            value = EXCLUDED.value,
            updated_at = EXCLUDED.updated_at;
    `
	sqlSessionDelete = `DELETE FROM chromelink_sessions WHERE key = $1;`
)

// PostgresStore keeps session ids in a PostgreSQL table shared by every host
// that points at the same database.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ Backend = (*PostgresStore)(nil)

// NewPostgresStore verifies the connection and makes sure the table exists.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateSessionsTable); err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store.postgres"),
	}, nil
}

func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, sqlSessionExists, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check session key %s: %w", key, err)
	}
	return exists, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, sqlSessionGet, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session key %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	// UTC so rows written from hosts in different zones compare sanely.
	if _, err := s.pool.Exec(ctx, sqlSessionUpsert, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write session key %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, sqlSessionDelete, key)
	if err != nil {
		return fmt.Errorf("failed to delete session key %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.log.Debug("Deleted session key.", zap.String("key", key))
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
