package schema_test

import (
	"context"
	stderrors "errors"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/internal/provisioning/schema"
	"github.com/shipnology/shipnology-backend/pkg/logger"
	"github.com/shipnology/shipnology-backend/pkg/tenant"
	"github.com/shipnology/shipnology-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplier_Execute(t *testing.T) {
	t.Run("enables extensions then runs statements in order", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		mockDB.ExpectExec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectExec(`CREATE EXTENSION IF NOT EXISTS "pg_trgm";`).WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectExec(`CREATE TABLE a (id int);`).WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectExec(`CREATE TABLE b (id int);`).WillReturnResult(sqlmock.NewResult(0, 0))

		applier := schema.NewApplier([]string{"uuid-ossp", "pg_trgm"}, logger.Nop())
		err := applier.Execute(context.Background(), mockDB.DB, []string{"CREATE TABLE a (id int)", "CREATE TABLE b (id int)"})

		require.NoError(t, err)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("extension failures are not fatal", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		mockDB.ExpectExec(`CREATE EXTENSION IF NOT EXISTS "pg_trgm";`).WillReturnError(stderrors.New("permission denied"))
		mockDB.ExpectExec(`CREATE TABLE a (id int);`).WillReturnResult(sqlmock.NewResult(0, 0))

		applier := schema.NewApplier([]string{"pg_trgm"}, logger.Nop())
		err := applier.Execute(context.Background(), mockDB.DB, []string{"CREATE TABLE a (id int)"})

		require.NoError(t, err)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("stops at the first failure with its 1-based index", func(t *testing.T) {
		driverErr := stderrors.New(`syntax error at or near "TABLEE"`)
		mockDB := testutil.NewMockDB(t)
		mockDB.ExpectExec(`CREATE TABLE a (id int);`).WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectExec(`CREATE TABLE b (id int);`).WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectExec(`CREATE TABLEE c (id int);`).WillReturnError(driverErr)

		ctx := tenant.WithTenant(context.Background(), 7, "acme_freight")
		applier := schema.NewApplier(nil, logger.Nop())
		err := applier.Execute(ctx, mockDB.DB, []string{
			"CREATE TABLE a (id int)",
			"CREATE TABLE b (id int)",
			"CREATE TABLEE c (id int)",
			"CREATE TABLE d (id int)",
		})

		var schemaErr *domain.SchemaApplicationError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, 3, schemaErr.Index)
		assert.Equal(t, "CREATE TABLEE c (id int)", schemaErr.Statement)
		assert.ErrorIs(t, err, driverErr)
		mockDB.ExpectationsWereMet(t)
	})
}

func TestApplier_Apply(t *testing.T) {
	t.Run("splits the script before executing", func(t *testing.T) {
		script := "SET client_encoding = 'UTF8';\nCREATE FUNCTION f() RETURNS int AS $$ BEGIN RETURN 1; END; $$ LANGUAGE plpgsql;\n"
		mockDB := testutil.NewMockDB(t)
		mockDB.ExpectExec("CREATE FUNCTION f() RETURNS int AS $$ BEGIN RETURN 1; END; $$ LANGUAGE plpgsql;").
			WillReturnResult(sqlmock.NewResult(0, 0))

		applier := schema.NewApplier(nil, logger.Nop())
		require.NoError(t, applier.Apply(context.Background(), mockDB.DB, script))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("parse errors report index zero and execute nothing", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)

		applier := schema.NewApplier([]string{"uuid-ossp"}, logger.Nop())
		err := applier.Apply(context.Background(), mockDB.DB, "CREATE FUNCTION f() AS $$ BEGIN;")

		var schemaErr *domain.SchemaApplicationError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, 0, schemaErr.Index)
		assert.ErrorIs(t, err, schema.ErrUnterminatedDollarQuote)
		mockDB.ExpectationsWereMet(t)
	})
}

func TestNewSource(t *testing.T) {
	t.Run("empty path serves the embedded script", func(t *testing.T) {
		script, err := schema.NewSource("").Load(context.Background())
		require.NoError(t, err)
		assert.Contains(t, script, "CREATE TABLE public.personnel")
	})

	t.Run("file source reads from disk", func(t *testing.T) {
		path := t.TempDir() + "/tenant.sql"
		require.NoError(t, os.WriteFile(path, []byte("CREATE TABLE x (id int);"), 0o600))

		script, err := schema.NewSource(path).Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "CREATE TABLE x (id int);", script)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := schema.NewSource(t.TempDir() + "/missing.sql").Load(context.Background())
		assert.Error(t, err)
	})
}
