// Package postgres stores container snapshots in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/stash/internal/config"
)

// ApplicationName is reported to PostgreSQL for every pooled connection.
const ApplicationName = "stash"

// ErrSchemaMissing is returned by Health when the containers table does not
// exist, which means migrations have not been applied.
var ErrSchemaMissing = errors.New("containers table missing; run cmd/migrate")

// Pool owns the pgx connection pool shared by the container repository.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects to the database described by cfg.
//
// Precondition: cfg passes config validation.
// Postcondition: Returns a Pool whose database answered a ping, or a non-nil
// error with no connections left open.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database %q on %s: %w", cfg.Name, cfg.Host, err)
	}
	return &Pool{pool: pool}, nil
}

// Health checks, within timeout, that the database answers and that the
// containers table exists.
//
// Precondition: The pool must not be closed.
// Postcondition: Returns nil, ErrSchemaMissing, or the connection error.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var present bool
	if err := p.pool.QueryRow(ctx, `SELECT to_regclass('containers') IS NOT NULL`).Scan(&present); err != nil {
		return fmt.Errorf("checking database health: %w", err)
	}
	if !present {
		return ErrSchemaMissing
	}
	return nil
}

// Close releases all connections. It is safe to call more than once.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool for repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
