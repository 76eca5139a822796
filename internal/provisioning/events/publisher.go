// Package events publishes organisation lifecycle events. Publishing is fire
// and forget: failures are logged and never fail the operation that emitted them.
package events

import (
	"context"
	stderrors "errors"

	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/pkg/actor"
	"github.com/shipnology/shipnology-backend/pkg/logger"
	"github.com/shipnology/shipnology-backend/pkg/messaging"
)

// Source names this service in published events
const Source = "provisioning-service"

// Provisioning paths reported in EventOrganisationProvisioned
const (
	PathImmediate = "immediate"
	PathDeferred  = "deferred"
)

// Sender is satisfied by *messaging.Publisher
type Sender interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// OrganisationEventPublisher publishes organisation lifecycle events
type OrganisationEventPublisher struct {
	sender Sender
	logger *logger.Logger
}

// NewOrganisationEventPublisher declares the organisation exchange and returns a publisher on it
func NewOrganisationEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*OrganisationEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeOrganisationEvents, Source, log)
	if err != nil {
		return nil, err
	}
	return NewWithSender(publisher, log), nil
}

// NewWithSender wraps an arbitrary sender. A nil sender disables publishing.
func NewWithSender(sender Sender, log *logger.Logger) *OrganisationEventPublisher {
	return &OrganisationEventPublisher{
		sender: sender,
		logger: log.WithComponent("organisation-events"),
	}
}

// Noop returns a publisher that drops every event, used when RabbitMQ is disabled
func Noop(log *logger.Logger) *OrganisationEventPublisher {
	return NewWithSender(nil, log)
}

func (p *OrganisationEventPublisher) publish(ctx context.Context, eventType string, orgID int64, data interface{}) {
	if p == nil || p.sender == nil {
		return
	}
	if err := p.sender.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Int64("organisation_id", orgID).
			Msg("failed to publish organisation event")
	}
}

// PublishCreated publishes organisation.created
func (p *OrganisationEventPublisher) PublishCreated(ctx context.Context, org *domain.Organisation, fullCreation bool) {
	data := messaging.OrganisationCreatedEvent{
		OrganisationID: org.ID,
		Nom:            org.Nom,
		DatabaseName:   org.DatabaseName,
		EmailContact:   org.EmailContact,
		Status:         string(org.Status),
		FullCreation:   fullCreation,
		CreatedBy:      actor.IDFromContext(ctx),
	}
	p.publish(ctx, messaging.EventOrganisationCreated, org.ID, data)
}

// PublishProvisioned publishes organisation.provisioned
func (p *OrganisationEventPublisher) PublishProvisioned(ctx context.Context, org *domain.Organisation, supervisor *domain.SupervisorRecord, path string) {
	data := messaging.OrganisationProvisionedEvent{
		OrganisationID: org.ID,
		DatabaseName:   org.DatabaseName,
		Path:           path,
	}
	if supervisor != nil {
		data.SupervisorID = supervisor.ID
		data.SupervisorEmail = supervisor.Email
	}
	p.publish(ctx, messaging.EventOrganisationProvisioned, org.ID, data)
}

// PublishProvisioningFailed publishes organisation.provisioning_failed for cause
func (p *OrganisationEventPublisher) PublishProvisioningFailed(ctx context.Context, org *domain.Organisation, cause error) {
	data := messaging.OrganisationProvisioningFailedEvent{
		OrganisationID: org.ID,
		DatabaseName:   org.DatabaseName,
		Stage:          Stage(cause),
		Error:          cause.Error(),
		RollbackClean:  true,
	}

	var rollbackErr *domain.RollbackError
	if stderrors.As(cause, &rollbackErr) {
		data.RollbackClean = false
	}
	var schemaErr *domain.SchemaApplicationError
	if stderrors.As(cause, &schemaErr) {
		data.StatementIndex = schemaErr.Index
	}

	p.publish(ctx, messaging.EventOrganisationProvisioningFailed, org.ID, data)
}

// PublishStatusChanged publishes organisation.status_changed
func (p *OrganisationEventPublisher) PublishStatusChanged(ctx context.Context, orgID int64, from, to domain.OrganisationStatus) {
	data := messaging.OrganisationStatusChangedEvent{
		OrganisationID: orgID,
		OldStatus:      string(from),
		NewStatus:      string(to),
		ChangedBy:      actor.IDFromContext(ctx),
	}
	p.publish(ctx, messaging.EventOrganisationStatusChanged, orgID, data)
}

// PublishRemoved publishes organisation.removed
func (p *OrganisationEventPublisher) PublishRemoved(ctx context.Context, org *domain.Organisation) {
	data := messaging.OrganisationRemovedEvent{
		OrganisationID: org.ID,
		DatabaseName:   org.DatabaseName,
		DatabaseKept:   true,
		RemovedBy:      actor.IDFromContext(ctx),
	}
	p.publish(ctx, messaging.EventOrganisationRemoved, org.ID, data)
}

// Stage names the pipeline step an error came from
func Stage(err error) string {
	var (
		provErr   *domain.ProvisioningError
		schemaErr *domain.SchemaApplicationError
		bootErr   *domain.BootstrapError
	)
	switch {
	case stderrors.As(err, &schemaErr):
		return "schema"
	case stderrors.As(err, &bootErr):
		return "bootstrap"
	case stderrors.As(err, &provErr):
		return "database"
	}
	return "registry"
}
