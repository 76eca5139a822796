package events_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/internal/provisioning/events"
	"github.com/shipnology/shipnology-backend/pkg/actor"
	"github.com/shipnology/shipnology-backend/pkg/logger"
	"github.com/shipnology/shipnology-backend/pkg/messaging"
	"github.com/shipnology/shipnology-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSender struct{ calls int }

func (f *failingSender) Publish(context.Context, string, interface{}) error {
	f.calls++
	return stderrors.New("channel closed")
}

func testOrganisation() *domain.Organisation {
	return &domain.Organisation{ID: 7, Nom: "Acme Freight", DatabaseName: "acme_freight", EmailContact: "ops@acme.example", Status: domain.StatusPending}
}

func TestOrganisationEventPublisher(t *testing.T) {
	t.Run("created carries the acting admin", func(t *testing.T) {
		mock := testutil.NewMockPublisher()
		p := events.NewWithSender(mock, logger.Nop())
		ctx := actor.WithActor(context.Background(), &actor.Actor{ID: "admin-1"})

		p.PublishCreated(ctx, testOrganisation(), true)

		mock.AssertEventPublished(t, messaging.EventOrganisationCreated)
		got := mock.Events()[0].Payload.(messaging.OrganisationCreatedEvent)
		assert.Equal(t, int64(7), got.OrganisationID)
		assert.Equal(t, "admin-1", got.CreatedBy)
		assert.True(t, got.FullCreation)
	})

	t.Run("provisioned reports path and supervisor", func(t *testing.T) {
		mock := testutil.NewMockPublisher()
		p := events.NewWithSender(mock, logger.Nop())

		p.PublishProvisioned(context.Background(), testOrganisation(),
			&domain.SupervisorRecord{ID: 3, Email: "boss@acme.example"}, events.PathDeferred)

		got := mock.Events()[0].Payload.(messaging.OrganisationProvisionedEvent)
		assert.Equal(t, events.PathDeferred, got.Path)
		assert.Equal(t, int64(3), got.SupervisorID)
	})

	t.Run("failure event carries stage, index and rollback state", func(t *testing.T) {
		mock := testutil.NewMockPublisher()
		p := events.NewWithSender(mock, logger.Nop())
		cause := &domain.RollbackError{
			Cause:      &domain.SchemaApplicationError{Index: 4, Err: stderrors.New("syntax error")},
			CleanupErr: stderrors.New("database is being accessed by other users"),
		}

		p.PublishProvisioningFailed(context.Background(), testOrganisation(), cause)

		got := mock.Events()[0].Payload.(messaging.OrganisationProvisioningFailedEvent)
		assert.Equal(t, "schema", got.Stage)
		assert.Equal(t, 4, got.StatementIndex)
		assert.False(t, got.RollbackClean)
	})

	t.Run("removed keeps the database", func(t *testing.T) {
		mock := testutil.NewMockPublisher()
		p := events.NewWithSender(mock, logger.Nop())
		ctx := actor.WithActor(context.Background(), &actor.Actor{ID: "admin-2"})

		p.PublishRemoved(ctx, testOrganisation())

		mock.AssertEventPublished(t, messaging.EventOrganisationRemoved)
		got := mock.Events()[0].Payload.(messaging.OrganisationRemovedEvent)
		assert.Equal(t, "acme_freight", got.DatabaseName)
		assert.True(t, got.DatabaseKept)
		assert.Equal(t, "admin-2", got.RemovedBy)
	})

	t.Run("send failures are swallowed", func(t *testing.T) {
		sender := &failingSender{}
		p := events.NewWithSender(sender, logger.Nop())

		p.PublishStatusChanged(context.Background(), 7, domain.StatusActive, domain.StatusInactive)

		assert.Equal(t, 1, sender.calls)
	})

	t.Run("noop publisher drops everything", func(t *testing.T) {
		p := events.Noop(logger.Nop())
		require.NotPanics(t, func() {
			p.PublishCreated(context.Background(), testOrganisation(), false)
		})
	})
}

func TestStage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&domain.ProvisioningError{Database: "x", Op: "create", Err: stderrors.New("boom")}, "database"},
		{fmt.Errorf("wrapped: %w", &domain.BootstrapError{Err: stderrors.New("dup")}), "bootstrap"},
		{&domain.SchemaApplicationError{Index: 1}, "schema"},
		{stderrors.New("connection refused"), "registry"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, events.Stage(tt.err))
	}
}
