package database

import (
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/shipnology/shipnology-backend/pkg/logger"
)

// MigrationsTable keeps the control-plane migration history apart from any
// goose table a tenant script might create.
const MigrationsTable = "control_goose_db_version"

// gooseLogger routes goose output through zerolog
type gooseLogger struct {
	log *logger.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.log.Info().Msgf(format, v...)
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.log.Fatal().Msgf(format, v...)
}

// Migrate applies the embedded control-plane migrations found under dir in fsys.
func (db *DB) Migrate(fsys fs.FS, dir string) error {
	goose.SetBaseFS(fsys)
	goose.SetTableName(MigrationsTable)
	goose.SetLogger(gooseLogger{log: db.logger.WithComponent("migrations")})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.Up(db.DB.DB, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
