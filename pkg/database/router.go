package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shipnology/shipnology-backend/pkg/config"
	"github.com/shipnology/shipnology-backend/pkg/logger"
)

// Opener opens a pool for one DSN. The default is sqlx.Connect on lib/pq.
type Opener func(ctx context.Context, dsn string) (*sqlx.DB, error)

// Router hands out pooled connections to tenant databases living on the same
// server as the control database. Pools are created lazily and kept until
// evicted.
type Router struct {
	base   config.DatabaseConfig
	open   Opener
	logger *logger.Logger

	mu    sync.Mutex
	pools map[string]*sqlx.DB

	// evictions counts Evict calls per name so a dial that raced one is discarded
	evictions map[string]uint64
}

// RouterOption customises a Router
type RouterOption func(*Router)

// WithOpener replaces how pools are opened
func WithOpener(open Opener) RouterOption {
	return func(r *Router) { r.open = open }
}

// NewRouter builds a router from the control-plane configuration. Every tenant
// session runs with statementTimeout when it is positive.
func NewRouter(base config.DatabaseConfig, statementTimeout time.Duration, log *logger.Logger, opts ...RouterOption) *Router {
	base.StatementTimeout = statementTimeout
	r := &Router{
		base:      base,
		logger:    log.WithComponent("tenant-router"),
		pools:     make(map[string]*sqlx.DB),
		evictions: make(map[string]uint64),
		open: func(ctx context.Context, dsn string) (*sqlx.DB, error) {
			return sqlx.ConnectContext(ctx, "postgres", dsn)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connection returns the pool for the named database, opening it on first use.
// Dialing happens outside the lock so one slow tenant never blocks the others.
func (r *Router) Connection(ctx context.Context, name string) (Querier, error) {
	r.mu.Lock()
	if db, ok := r.pools[name]; ok {
		r.mu.Unlock()
		return db, nil
	}
	generation := r.evictions[name]
	r.mu.Unlock()

	cfg := r.base.ForDatabase(name)
	db, err := r.open(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tenant database %s: %w", name, err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(r.base.ConnMaxLifetime)

	r.mu.Lock()
	if r.evictions[name] != generation {
		r.mu.Unlock()
		db.Close()
		return nil, fmt.Errorf("tenant pool %s was evicted while connecting", name)
	}
	if existing, ok := r.pools[name]; ok {
		r.mu.Unlock()
		db.Close()
		return existing, nil
	}
	r.pools[name] = db
	r.mu.Unlock()

	r.logger.Debug().Str("database", name).Msg("opened tenant pool")
	return db, nil
}

// Evict closes and forgets the pool for name. DROP DATABASE refuses to run
// while this process still holds sessions on it.
func (r *Router) Evict(name string) error {
	r.mu.Lock()
	db, ok := r.pools[name]
	delete(r.pools, name)
	r.evictions[name]++
	r.mu.Unlock()

	if !ok {
		return nil
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close tenant pool %s: %w", name, err)
	}
	r.logger.Debug().Str("database", name).Msg("evicted tenant pool")
	return nil
}

// Close closes every pool
func (r *Router) Close() error {
	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[string]*sqlx.DB)
	r.mu.Unlock()

	var firstErr error
	for name, db := range pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close tenant pool %s: %w", name, err)
		}
	}
	return firstErr
}
