package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Organisation lifecycle, published by the provisioning service
	EventOrganisationCreated            = "organisation.created"
	EventOrganisationProvisioned        = "organisation.provisioned"
	EventOrganisationProvisioningFailed = "organisation.provisioning_failed"
	EventOrganisationStatusChanged      = "organisation.status_changed"
	EventOrganisationRemoved            = "organisation.removed"

	// Tenant activity, published by the ERP services running on tenant databases
	EventTenantSessionStarted = "tenant.session.started"
)

// Exchange names
const (
	ExchangeOrganisationEvents = "organisation.events"
	ExchangeTenantEvents       = "tenant.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// OrganisationCreatedEvent is published when an organisation enters the registry
type OrganisationCreatedEvent struct {
	OrganisationID int64  `json:"organisation_id"`
	Nom            string `json:"nom"`
	DatabaseName   string `json:"database_name"`
	EmailContact   string `json:"email_contact"`
	Status         string `json:"status"`
	FullCreation   bool   `json:"full_creation"`
	CreatedBy      string `json:"created_by,omitempty"`
}

// OrganisationProvisionedEvent is published once a tenant database is usable
type OrganisationProvisionedEvent struct {
	OrganisationID  int64  `json:"organisation_id"`
	DatabaseName    string `json:"database_name"`
	SupervisorID    int64  `json:"supervisor_id"`
	SupervisorEmail string `json:"supervisor_email"`
	// Path is "immediate" or "deferred"
	Path string `json:"path"`
}

// OrganisationProvisioningFailedEvent is published when a provisioning run fails
type OrganisationProvisioningFailedEvent struct {
	OrganisationID int64  `json:"organisation_id"`
	DatabaseName   string `json:"database_name"`
	Stage          string `json:"stage"`
	StatementIndex int    `json:"statement_index,omitempty"`
	Error          string `json:"error"`
	RollbackClean  bool   `json:"rollback_clean"`
}

// OrganisationStatusChangedEvent is published on activate/deactivate
type OrganisationStatusChangedEvent struct {
	OrganisationID int64  `json:"organisation_id"`
	OldStatus      string `json:"old_status"`
	NewStatus      string `json:"new_status"`
	ChangedBy      string `json:"changed_by,omitempty"`
}

// OrganisationRemovedEvent is published when an organisation leaves the
// registry. The tenant database is kept.
type OrganisationRemovedEvent struct {
	OrganisationID int64  `json:"organisation_id"`
	DatabaseName   string `json:"database_name"`
	DatabaseKept   bool   `json:"database_kept"`
	RemovedBy      string `json:"removed_by,omitempty"`
}

// TenantSessionStartedEvent is published by tenant-side services on user login
type TenantSessionStartedEvent struct {
	DatabaseName string    `json:"database_name"`
	UserID       int64     `json:"user_id"`
	StartedAt    time.Time `json:"started_at"`
}
