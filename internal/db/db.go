package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"textile-inventory-ledger/internal/config"
)

// NewPool builds the single process-wide connection pool named in spec §5
// ("A single process-wide pool with configurable (min, max) connections").
// BeforeAcquire runs the health probe the spec calls out explicitly — a
// read of the session's isolation level — before a checked-out connection
// is handed back to a caller, matching "A health probe (isolation_level
// read) gates reuse of a connection checked out from the pool."
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MinConns = cfg.DBMinConnections
	poolConfig.MaxConns = cfg.DBMaxConnections
	poolConfig.ConnConfig.ConnectTimeout = cfg.DBConnectionTimeout

	poolConfig.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		var isolation string
		if err := conn.QueryRow(ctx, "SELECT current_setting('transaction_isolation')").Scan(&isolation); err != nil {
			return false
		}
		return true
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}
