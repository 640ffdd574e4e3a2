// Package storage provides database connections and repository
// implementations for the prediction scanner's six tables.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prediction-scanner/internal/config"
	"github.com/prediction-scanner/internal/types"
)

// PostgresDB wraps the pgxpool connection with a liveness probe and a
// self-healing reconnect: any repository error marks the pool unhealthy,
// and the next operation probes (SELECT 1) and re-establishes the pool
// before proceeding.
type PostgresDB struct {
	connString string

	mu        sync.RWMutex
	pool      *pgxpool.Pool
	unhealthy bool
}

// NewPostgresDB creates a new Postgres database connection pool
func NewPostgresDB(cfg *config.DatabaseConfig) (*PostgresDB, error) {
	db := &PostgresDB{connString: cfg.ConnString()}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.newPool(ctx)
	if err != nil {
		return nil, err
	}
	db.pool = pool
	return db, nil
}

func (db *PostgresDB) newPool(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(db.connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

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

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.pool != nil {
		db.pool.Close()
		db.pool = nil
	}
}

// Pool returns the current connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.pool
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.Pool().Ping(ctx)
}

// MarkUnhealthy flags the pool for a probe before the next operation
func (db *PostgresDB) MarkUnhealthy() {
	db.mu.Lock()
	db.unhealthy = true
	db.mu.Unlock()
}

// Ensure verifies the pool is usable, probing and re-establishing it if a
// previous operation marked it unhealthy.
func (db *PostgresDB) Ensure(ctx context.Context) error {
	db.mu.RLock()
	unhealthy := db.unhealthy
	pool := db.pool
	db.mu.RUnlock()

	if pool == nil {
		return &types.ServiceError{Code: types.CodeDatabaseUnavailable, Message: "database pool is closed"}
	}
	if !unhealthy {
		return nil
	}

	// Probe; a passing probe means the earlier error was a query error,
	// not a connection loss.
	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err == nil {
		db.mu.Lock()
		db.unhealthy = false
		db.mu.Unlock()
		return nil
	}

	newPool, err := db.newPool(ctx)
	if err != nil {
		return &types.ServiceError{
			Code:    types.CodeDatabaseUnavailable,
			Message: fmt.Sprintf("database reconnect failed: %v", err),
		}
	}

	db.mu.Lock()
	old := db.pool
	db.pool = newPool
	db.unhealthy = false
	db.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// fail marks the pool unhealthy and wraps the error for the caller
func (db *PostgresDB) fail(op string, err error) error {
	db.MarkUnhealthy()
	return fmt.Errorf("%s: %w", op, err)
}
