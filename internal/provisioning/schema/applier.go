package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/pkg/logger"
	"github.com/shipnology/shipnology-backend/pkg/tenant"
)

const (
	progressEvery = 10
	previewLength = 200
)

// Execer runs one statement. *sqlx.DB, *sqlx.Tx and database.Querier all satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Applier enables the tenant extensions and runs script statements in order
type Applier struct {
	extensions []string
	logger     *logger.Logger
}

// NewApplier creates an applier enabling the given extensions first
func NewApplier(extensions []string, log *logger.Logger) *Applier {
	return &Applier{
		extensions: extensions,
		logger:     log.WithComponent("schema-applier"),
	}
}

// Apply splits script and executes it against conn
func (a *Applier) Apply(ctx context.Context, conn Execer, script string) error {
	statements, err := Split(script)
	if err != nil {
		return &domain.SchemaApplicationError{Index: 0, Err: err}
	}
	return a.Execute(ctx, conn, statements)
}

// Execute enables extensions then runs statements one by one, each terminated
// with a semicolon. It stops at the first failure and reports its 1-based index.
func (a *Applier) Execute(ctx context.Context, conn Execer, statements []string) error {
	log := a.logger
	if id, err := tenant.OrganisationID(ctx); err == nil {
		name, _ := tenant.DatabaseName(ctx)
		log = log.WithTenant(id, name)
	}

	a.enableExtensions(ctx, conn, log)

	log.Info().Int("statements", len(statements)).Msg("applying tenant schema")

	for i, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt+";"); err != nil {
			log.Error().
				Err(err).
				Int("statement_index", i+1).
				Str("statement", preview(stmt)).
				Msg("schema statement failed")
			return &domain.SchemaApplicationError{Index: i + 1, Statement: stmt, Err: err}
		}

		if (i+1)%progressEvery == 0 {
			log.Debug().Int("done", i+1).Int("total", len(statements)).Msg("schema progress")
		}
	}

	log.Info().Int("statements", len(statements)).Msg("tenant schema applied")
	return nil
}

func (a *Applier) enableExtensions(ctx context.Context, conn Execer, log *logger.Logger) {
	for _, ext := range a.extensions {
		stmt := fmt.Sprintf(`CREATE EXTENSION IF NOT EXISTS "%s";`, ext)
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			log.Warn().Err(err).Str("extension", ext).Msg("could not enable extension")
		}
	}
}

func preview(stmt string) string {
	if len(stmt) <= previewLength {
		return stmt
	}
	return stmt[:previewLength] + "..."
}
