package domain

import (
	"strings"
	"time"
)

// OrganisationStatus is the lifecycle state of a tenant
type OrganisationStatus string

const (
	StatusPending  OrganisationStatus = "pending"
	StatusActive   OrganisationStatus = "active"
	StatusInactive OrganisationStatus = "inactive"
)

// Valid reports whether s is a known status
func (s OrganisationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusInactive:
		return true
	}
	return false
}

// CanTransitionTo reports whether s may move to next. Pending only leaves
// through provisioning; active and inactive toggle freely.
func (s OrganisationStatus) CanTransitionTo(next OrganisationStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusActive
	case StatusActive:
		return next == StatusInactive
	case StatusInactive:
		return next == StatusActive
	}
	return false
}

// Organisation is one tenant in the control-plane registry
type Organisation struct {
	ID               int64              `json:"id" db:"id"`
	Nom              string             `json:"nom" db:"nom"`
	NomAffichage     *string            `json:"nom_affichage,omitempty" db:"nom_affichage"`
	DatabaseName     string             `json:"database_name" db:"database_name"`
	EmailContact     string             `json:"email_contact" db:"email_contact"`
	Telephone        *string            `json:"telephone,omitempty" db:"telephone"`
	Adresse          *string            `json:"adresse,omitempty" db:"adresse"`
	Plan             string             `json:"plan" db:"plan"`
	Status           OrganisationStatus `json:"status" db:"status"`
	DatabaseCreated  bool               `json:"database_created" db:"database_created"`
	SetupCompleted   bool               `json:"setup_completed" db:"setup_completed"`
	HasUsers         bool               `json:"has_users" db:"has_users"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" db:"updated_at"`
	LastConnectionAt *time.Time         `json:"last_connection_at,omitempty" db:"last_connection_at"`
	LogoURL          *string            `json:"logo_url,omitempty" db:"logo_url"`
	SMTPSettings
}

// DefaultSMTPPort is used when setup enables SMTP without a port
const DefaultSMTPPort = 587

// SMTPSettings is the tenant's own outgoing mail server, chosen at setup.
// The password never leaves the registry.
type SMTPSettings struct {
	SMTPEnabled   bool    `json:"smtp_enabled" db:"smtp_enabled"`
	SMTPHost      *string `json:"smtp_host,omitempty" db:"smtp_host"`
	SMTPPort      *int    `json:"smtp_port,omitempty" db:"smtp_port"`
	SMTPUser      *string `json:"smtp_user,omitempty" db:"smtp_user"`
	SMTPPassword  *string `json:"-" db:"smtp_password"`
	SMTPFromEmail *string `json:"smtp_from_email,omitempty" db:"smtp_from_email"`
	SMTPFromName  *string `json:"smtp_from_name,omitempty" db:"smtp_from_name"`
	SMTPUseTLS    bool    `json:"smtp_use_tls" db:"smtp_use_tls"`
}

// MarkProvisioned flips every progress flag and activates the organisation.
// Flags only ever go from false to true.
func (o *Organisation) MarkProvisioned() {
	o.DatabaseCreated = true
	o.SetupCompleted = true
	o.HasUsers = true
	o.Status = StatusActive
}

// Consistent checks setupCompleted => databaseCreated => status != pending
func (o *Organisation) Consistent() bool {
	if o.SetupCompleted && !o.DatabaseCreated {
		return false
	}
	if o.DatabaseCreated && o.Status == StatusPending {
		return false
	}
	return true
}

// DisplayName prefers nom_affichage over nom
func (o *Organisation) DisplayName() string {
	if o.NomAffichage != nil && *o.NomAffichage != "" {
		return *o.NomAffichage
	}
	return o.Nom
}

// PublicOrganisation is what an unauthenticated setup page may see
type PublicOrganisation struct {
	ID           int64   `json:"id"`
	Nom          string  `json:"nom"`
	NomAffichage *string `json:"nom_affichage,omitempty"`
	DatabaseName string  `json:"database_name"`
	EmailContact string  `json:"email_contact"`
	Plan         string  `json:"plan"`
}

// Public strips registry internals
func (o *Organisation) Public() PublicOrganisation {
	return PublicOrganisation{
		ID:           o.ID,
		Nom:          o.Nom,
		NomAffichage: o.NomAffichage,
		DatabaseName: o.DatabaseName,
		EmailContact: o.EmailContact,
		Plan:         o.Plan,
	}
}

// CreateOrganisationRequest is the admin payload for a new tenant
type CreateOrganisationRequest struct {
	Nom          string           `json:"nom" validate:"required,min=2,max=255"`
	NomAffichage *string          `json:"nom_affichage,omitempty" validate:"omitempty,max=255"`
	DatabaseName string           `json:"database_name,omitempty" validate:"omitempty,max=63,dbname"`
	EmailContact string           `json:"email_contact" validate:"required,email"`
	Telephone    *string          `json:"telephone,omitempty" validate:"omitempty,max=50"`
	Adresse      *string          `json:"adresse,omitempty"`
	Plan         string           `json:"plan,omitempty" validate:"omitempty,max=50"`
	FullCreation bool             `json:"full_creation"`
	SendEmail    bool             `json:"send_email"`
	Supervisor   *SupervisorInput `json:"supervisor,omitempty"`
}

// CompleteSetupRequest is the payload presented together with a setup token
type CompleteSetupRequest struct {
	NomAffichage *string         `json:"nom_affichage,omitempty" validate:"omitempty,max=255"`
	DatabaseName string          `json:"database_name,omitempty" validate:"omitempty,max=63,dbname"`
	EmailContact *string         `json:"email_contact,omitempty" validate:"omitempty,email"`
	Telephone    *string         `json:"telephone,omitempty" validate:"omitempty,max=50"`
	Adresse      *string         `json:"adresse,omitempty"`
	Plan         string          `json:"plan,omitempty" validate:"omitempty,max=50"`
	LogoURL      *string         `json:"logo_url,omitempty" validate:"omitempty,max=500"`
	Supervisor   SupervisorInput `json:"supervisor"`

	SMTPEnabled   bool   `json:"smtp_enabled,omitempty"`
	SMTPHost      string `json:"smtp_host,omitempty" validate:"omitempty,max=255"`
	SMTPPort      int    `json:"smtp_port,omitempty" validate:"omitempty,min=1,max=65535"`
	SMTPUser      string `json:"smtp_user,omitempty" validate:"omitempty,max=255"`
	SMTPPassword  string `json:"smtp_password,omitempty" validate:"omitempty,max=255"`
	SMTPFromEmail string `json:"smtp_from_email,omitempty" validate:"omitempty,email"`
	SMTPFromName  string `json:"smtp_from_name,omitempty" validate:"omitempty,max=255"`
	SMTPUseTLS    *bool  `json:"smtp_use_tls,omitempty"`
}

// SMTP returns the mail settings carried by the request. They only count
// when enabled with a host, a user and a password; the port defaults to 587,
// the sender address to the user and the sender name to nom. TLS stays on
// unless explicitly refused.
func (r *CompleteSetupRequest) SMTP(nom string) (SMTPSettings, bool) {
	if !r.SMTPEnabled || r.SMTPHost == "" || r.SMTPUser == "" || r.SMTPPassword == "" {
		return SMTPSettings{}, false
	}

	port := r.SMTPPort
	if port == 0 {
		port = DefaultSMTPPort
	}
	from := r.SMTPFromEmail
	if from == "" {
		from = r.SMTPUser
	}
	name := r.SMTPFromName
	if name == "" {
		name = nom
	}

	return SMTPSettings{
		SMTPEnabled:   true,
		SMTPHost:      &r.SMTPHost,
		SMTPPort:      &port,
		SMTPUser:      &r.SMTPUser,
		SMTPPassword:  &r.SMTPPassword,
		SMTPFromEmail: &from,
		SMTPFromName:  &name,
		SMTPUseTLS:    r.SMTPUseTLS == nil || *r.SMTPUseTLS,
	}, true
}

// UpdateOrganisationRequest changes the descriptive fields of an organisation.
// The database name is fixed once created; sending a different one is refused.
type UpdateOrganisationRequest struct {
	Nom          *string `json:"nom,omitempty" validate:"omitempty,min=2,max=255"`
	NomAffichage *string `json:"nom_affichage,omitempty" validate:"omitempty,max=255"`
	DatabaseName string  `json:"database_name,omitempty"`
	EmailContact *string `json:"email_contact,omitempty" validate:"omitempty,email"`
	Telephone    *string `json:"telephone,omitempty" validate:"omitempty,max=50"`
	Adresse      *string `json:"adresse,omitempty"`
	Plan         *string `json:"plan,omitempty" validate:"omitempty,min=1,max=50"`
	LogoURL      *string `json:"logo_url,omitempty" validate:"omitempty,max=500"`
}

// Apply copies the fields present in r onto org
func (r *UpdateOrganisationRequest) Apply(org *Organisation) {
	if r.Nom != nil {
		org.Nom = strings.TrimSpace(*r.Nom)
	}
	if r.NomAffichage != nil {
		org.NomAffichage = r.NomAffichage
	}
	if r.EmailContact != nil {
		org.EmailContact = *r.EmailContact
	}
	if r.Telephone != nil {
		org.Telephone = r.Telephone
	}
	if r.Adresse != nil {
		org.Adresse = r.Adresse
	}
	if r.Plan != nil {
		org.Plan = *r.Plan
	}
	if r.LogoURL != nil {
		org.LogoURL = r.LogoURL
	}
}

// UpdateLogoRequest points an organisation at an already stored logo
type UpdateLogoRequest struct {
	LogoURL string `json:"logo_url" validate:"required,max=500"`
}

// RemovalResult reports a registry removal. The tenant database is never
// dropped by a removal and has to be cleaned up by an operator.
type RemovalResult struct {
	OrganisationID int64  `json:"organisation_id"`
	DatabaseName   string `json:"database_name"`
	DatabaseKept   bool   `json:"database_kept"`
	Message        string `json:"message"`
}

// OrganisationFilter narrows ListOrganisations
type OrganisationFilter struct {
	Status OrganisationStatus
	Search string
	Limit  int
	Offset int
}

// OrganisationStats counts organisations per status
type OrganisationStats struct {
	Total    int64 `json:"total" db:"total"`
	Pending  int64 `json:"pending" db:"pending"`
	Active   int64 `json:"active" db:"active"`
	Inactive int64 `json:"inactive" db:"inactive"`
}

// StatusReport compares what the registry believes with what the server holds
type StatusReport struct {
	OrganisationID   int64              `json:"organisation_id"`
	DatabaseName     string             `json:"database_name"`
	Status           OrganisationStatus `json:"status"`
	DatabaseCreated  bool               `json:"database_created"`
	HasUsers         bool               `json:"has_users"`
	SetupCompleted   bool               `json:"setup_completed"`
	UserCount        int64              `json:"user_count"`
	Registry         RegistryFlags      `json:"registry"`
	Drift            bool               `json:"drift"`
	CreatedAt        time.Time          `json:"created_at"`
	LastConnectionAt *time.Time         `json:"last_connection_at,omitempty"`
}

// RegistryFlags are the cached flags stored on the organisation row
type RegistryFlags struct {
	DatabaseCreated bool `json:"database_created"`
	HasUsers        bool `json:"has_users"`
}

// CreateOrganisationResult is returned to the admin that created a tenant
type CreateOrganisationResult struct {
	Organisation *Organisation      `json:"organisation"`
	Supervisor   *SupervisorRecord  `json:"supervisor,omitempty"`
	SetupToken   string             `json:"setup_token,omitempty"`
	SetupURL     string             `json:"setup_url,omitempty"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty"`
	Email        EmailDeliveryState `json:"email"`
}

// EmailDeliveryState reports the best-effort invitation delivery
type EmailDeliveryState struct {
	Sent    bool   `json:"sent"`
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// CompleteSetupResult is returned to the supervisor finishing a deferred setup
type CompleteSetupResult struct {
	Organisation *Organisation     `json:"organisation"`
	Supervisor   *SupervisorRecord `json:"supervisor"`
	AccessToken  string            `json:"access_token,omitempty"`
	ExpiresIn    int64             `json:"expires_in,omitempty"`
	WelcomeSent  bool              `json:"welcome_email_sent"`
}
