package provisioner_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/internal/provisioning/provisioner"
	apperrors "github.com/shipnology/shipnology-backend/pkg/errors"
	"github.com/shipnology/shipnology-backend/pkg/logger"
	"github.com/shipnology/shipnology-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	existsQuery    = `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`
	terminateQuery = `SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`
)

type sleepRecorder struct {
	calls []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return nil
}

func newProvisioner(mockDB *testutil.MockDB, rec *sleepRecorder) *provisioner.Provisioner {
	return provisioner.New(mockDB.DB, logger.Nop(),
		provisioner.WithSleep(rec.sleep),
		provisioner.WithTerminateWait(250*time.Millisecond),
	)
}

func TestProvisionDatabase(t *testing.T) {
	t.Run("creates a missing database without terminating anything", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		rec := &sleepRecorder{}
		mockDB.ExpectQuery(existsQuery).WithArgs("acme_freight").
			WillReturnRows(testutil.MockRows("exists").AddRow(false))
		mockDB.ExpectExec(`CREATE DATABASE "acme_freight" WITH ENCODING 'UTF8'`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := newProvisioner(mockDB, rec).ProvisionDatabase(context.Background(), "acme_freight")

		require.NoError(t, err)
		assert.Empty(t, rec.calls)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("reclaims an existing database before creating it", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		rec := &sleepRecorder{}
		mockDB.ExpectQuery(existsQuery).WithArgs("acme_freight").
			WillReturnRows(testutil.MockRows("exists").AddRow(true))
		mockDB.ExpectExec(terminateQuery).WithArgs("acme_freight").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mockDB.ExpectExec(`DROP DATABASE IF EXISTS "acme_freight"`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectExec(`CREATE DATABASE "acme_freight" WITH ENCODING 'UTF8'`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := newProvisioner(mockDB, rec).ProvisionDatabase(context.Background(), "acme_freight")

		require.NoError(t, err)
		assert.Equal(t, []time.Duration{250 * time.Millisecond}, rec.calls)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("rejects an invalid name before touching the server", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)

		err := newProvisioner(mockDB, &sleepRecorder{}).ProvisionDatabase(context.Background(), `acme"; DROP DATABASE shipnology; --`)

		require.Error(t, err)
		var provErr *domain.ProvisioningError
		assert.False(t, stderrors.As(err, &provErr))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("refuses reserved names before touching the server", func(t *testing.T) {
		for _, name := range []string{"postgres", "template0", "template1", "shipnology"} {
			mockDB := testutil.NewMockDB(t)
			p := provisioner.New(mockDB.DB, logger.Nop(),
				provisioner.WithSleep((&sleepRecorder{}).sleep),
				provisioner.WithReservedNames("shipnology"))

			err := p.ProvisionDatabase(context.Background(), name)

			assert.ErrorIs(t, err, apperrors.ErrValidation, name)
			assert.ErrorIs(t, p.DropDatabase(context.Background(), name), apperrors.ErrValidation, name)
			mockDB.ExpectationsWereMet(t)
		}
	})

	t.Run("create failure is a ProvisioningError", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		mockDB.ExpectQuery(existsQuery).WithArgs("acme_freight").
			WillReturnRows(testutil.MockRows("exists").AddRow(false))
		mockDB.ExpectExec(`CREATE DATABASE "acme_freight" WITH ENCODING 'UTF8'`).
			WillReturnError(stderrors.New("permission denied to create database"))

		err := newProvisioner(mockDB, &sleepRecorder{}).ProvisionDatabase(context.Background(), "acme_freight")

		var provErr *domain.ProvisioningError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "create", provErr.Op)
		assert.Equal(t, "acme_freight", provErr.Database)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("drop failure during reclaim stops before create", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		mockDB.ExpectQuery(existsQuery).WithArgs("acme_freight").
			WillReturnRows(testutil.MockRows("exists").AddRow(true))
		mockDB.ExpectExec(terminateQuery).WithArgs("acme_freight").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectExec(`DROP DATABASE IF EXISTS "acme_freight"`).
			WillReturnError(stderrors.New("database is being accessed by other users"))

		err := newProvisioner(mockDB, &sleepRecorder{}).ProvisionDatabase(context.Background(), "acme_freight")

		var provErr *domain.ProvisioningError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "drop", provErr.Op)
		mockDB.ExpectationsWereMet(t)
	})
}

func TestDropDatabase(t *testing.T) {
	t.Run("missing database is a no-op", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		rec := &sleepRecorder{}
		mockDB.ExpectQuery(existsQuery).WithArgs("acme_freight").
			WillReturnRows(testutil.MockRows("exists").AddRow(false))

		require.NoError(t, newProvisioner(mockDB, rec).DropDatabase(context.Background(), "acme_freight"))
		assert.Empty(t, rec.calls)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("terminates sessions then drops", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		rec := &sleepRecorder{}
		mockDB.ExpectQuery(existsQuery).WithArgs("acme_freight").
			WillReturnRows(testutil.MockRows("exists").AddRow(true))
		mockDB.ExpectExec(terminateQuery).WithArgs("acme_freight").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectExec(`DROP DATABASE IF EXISTS "acme_freight"`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, newProvisioner(mockDB, rec).DropDatabase(context.Background(), "acme_freight"))
		assert.Len(t, rec.calls, 1)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("cancelled wait aborts the drop", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		mockDB.ExpectQuery(existsQuery).WithArgs("acme_freight").
			WillReturnRows(testutil.MockRows("exists").AddRow(true))
		mockDB.ExpectExec(terminateQuery).WithArgs("acme_freight").
			WillReturnResult(sqlmock.NewResult(0, 0))

		p := provisioner.New(mockDB.DB, logger.Nop(),
			provisioner.WithSleep(func(context.Context, time.Duration) error { return context.Canceled }))

		err := p.DropDatabase(context.Background(), "acme_freight")

		var provErr *domain.ProvisioningError
		require.ErrorAs(t, err, &provErr)
		assert.ErrorIs(t, err, context.Canceled)
		mockDB.ExpectationsWereMet(t)
	})
}
