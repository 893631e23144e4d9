package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/config"
)

// New opens the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(cfg.Type) {
	case "memory":
		return NewMemoryStore(), nil

	case "", "sqlite":
		path, err := homedir.Expand(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand sqlite path %q: %w", cfg.SQLite.Path, err)
		}
		return NewSQLiteStore(ctx, path, logger)

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Postgres.ConnString())
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		s, err := NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil

	case "nats":
		return NewNATSStore(ctx, NATSOptions{
			URL:            cfg.NATS.URL,
			Bucket:         cfg.NATS.Bucket,
			ConnectTimeout: cfg.NATS.ConnectTimeout,
		}, logger)
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.Type)
}
