// Package provisioner creates and tears down tenant databases on the
// control-plane PostgreSQL server.
package provisioner

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/pkg/database"
	"github.com/shipnology/shipnology-backend/pkg/logger"
)

// DefaultTerminateWait is the pause between terminating sessions and dropping
const DefaultTerminateWait = 500 * time.Millisecond

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Provisioner issues CREATE/DROP DATABASE through the control connection.
// It never runs inside a transaction: PostgreSQL refuses both statements there.
type Provisioner struct {
	control       database.Querier
	terminateWait time.Duration
	sleep         SleepFunc
	names         domain.DatabaseNamePolicy
	logger        *logger.Logger
}

// Option configures a Provisioner
type Option func(*Provisioner)

// WithTerminateWait overrides the post-termination pause
func WithTerminateWait(d time.Duration) Option {
	return func(p *Provisioner) { p.terminateWait = d }
}

// WithReservedNames refuses to create or drop names, typically the
// control-plane database, on top of the server's built-in databases
func WithReservedNames(names ...string) Option {
	return func(p *Provisioner) { p.names = domain.NewDatabaseNamePolicy(names...) }
}

// WithSleep replaces the wait, used by tests
func WithSleep(fn SleepFunc) Option {
	return func(p *Provisioner) { p.sleep = fn }
}

// New creates a Provisioner on the control-plane connection
func New(control database.Querier, log *logger.Logger, opts ...Option) *Provisioner {
	p := &Provisioner{
		control:       control,
		terminateWait: DefaultTerminateWait,
		sleep:         sleepContext,
		logger:        log.WithComponent("db-provisioner"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DatabaseExists reports whether name is present in pg_database
func (p *Provisioner) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := p.control.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name)
	if err != nil {
		return false, &domain.ProvisioningError{Database: name, Op: "check", Err: err}
	}
	return exists, nil
}

// ProvisionDatabase creates name, reclaiming it first when it already exists.
// Retrying after a failed run therefore starts from an empty database.
func (p *Provisioner) ProvisionDatabase(ctx context.Context, name string) error {
	if err := p.names.Check(name); err != nil {
		return err
	}

	log := p.logger.With().Str("database", name).Logger()

	exists, err := p.DatabaseExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		log.Warn().Msg("database already exists, reclaiming it")
		if err := p.reclaim(ctx, name); err != nil {
			return err
		}
	}

	stmt := fmt.Sprintf("CREATE DATABASE %s WITH ENCODING 'UTF8'", pq.QuoteIdentifier(name))
	if _, err := p.control.ExecContext(ctx, stmt); err != nil {
		log.Error().Err(err).Str("pq_code", database.PQCode(err)).Msg("create database failed")
		return &domain.ProvisioningError{Database: name, Op: "create", Err: err}
	}

	log.Info().Bool("reclaimed", exists).Msg("tenant database created")
	return nil
}

// DropDatabase removes name if it exists, disconnecting its sessions first
func (p *Provisioner) DropDatabase(ctx context.Context, name string) error {
	if err := p.names.Check(name); err != nil {
		return err
	}

	exists, err := p.DatabaseExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if err := p.reclaim(ctx, name); err != nil {
		return err
	}

	p.logger.Info().Str("database", name).Msg("tenant database dropped")
	return nil
}

// reclaim terminates every other session on name, waits for the slots to be
// released and drops the database.
func (p *Provisioner) reclaim(ctx context.Context, name string) error {
	_, err := p.control.ExecContext(ctx,
		`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`,
		name)
	if err != nil {
		return &domain.ProvisioningError{Database: name, Op: "terminate", Err: err}
	}

	if err := p.sleep(ctx, p.terminateWait); err != nil {
		return &domain.ProvisioningError{Database: name, Op: "terminate", Err: err}
	}

	if _, err := p.control.ExecContext(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(name)); err != nil {
		p.logger.Error().Err(err).Str("database", name).Str("pq_code", database.PQCode(err)).Msg("drop database failed")
		return &domain.ProvisioningError{Database: name, Op: "drop", Err: err}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
