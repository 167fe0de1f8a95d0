package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Database keeps the latest reported bitmask per device so state survives
// restarts. It is not a history store.
type Database struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	last map[string]uint64

	logger *zap.Logger
}

func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Database{
		pool:   pool,
		last:   make(map[string]uint64),
		logger: zap.L(), // returns the global logger.
	}, nil
}

func (db *Database) Close() error {
	if db.pool == nil {
		return nil
	}
	db.pool.Close()
	return nil
}
