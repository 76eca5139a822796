// Package service implements the provisioning workflows: the setup token
// lifecycle, the database, schema and supervisor pipeline, and the
// organisation admin operations.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/shipnology/shipnology-backend/internal/auth/jwt"
	"github.com/shipnology/shipnology-backend/internal/provisioning/bootstrap"
	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/internal/provisioning/events"
	"github.com/shipnology/shipnology-backend/internal/provisioning/notification"
	"github.com/shipnology/shipnology-backend/internal/provisioning/schema"
	"github.com/shipnology/shipnology-backend/pkg/database"
	"github.com/shipnology/shipnology-backend/pkg/errors"
	"github.com/shipnology/shipnology-backend/pkg/httputil"
	"github.com/shipnology/shipnology-backend/pkg/logger"
	"github.com/shipnology/shipnology-backend/pkg/tenant"
)

// Defaults for Options left zero
const (
	DefaultTimeout        = 2 * time.Minute
	DefaultCleanupTimeout = 30 * time.Second
	DefaultPlan           = "premium"
)

// DatabaseProvisioner creates and drops tenant databases
type DatabaseProvisioner interface {
	ProvisionDatabase(ctx context.Context, name string) error
	DropDatabase(ctx context.Context, name string) error
	DatabaseExists(ctx context.Context, name string) (bool, error)
}

// ConnectionRouter hands out connections to tenant databases
type ConnectionRouter interface {
	Connection(ctx context.Context, name string) (database.Querier, error)
	Evict(name string) error
}

// SchemaApplier runs split statements against a tenant connection
type SchemaApplier interface {
	Execute(ctx context.Context, conn schema.Execer, statements []string) error
}

// SupervisorCreator inserts the first administrative account
type SupervisorCreator interface {
	CreateSupervisor(ctx context.Context, conn database.Querier, organisationID int64, in domain.SupervisorInput) (*domain.SupervisorRecord, error)
}

// AccessTokenIssuer signs the supervisor's first access token
type AccessTokenIssuer interface {
	GenerateAccessToken(user *jwt.UserInfo) (string, time.Time, error)
}

// Options tunes the orchestrator
type Options struct {
	Timeout        time.Duration
	CleanupTimeout time.Duration
	DefaultPlan    string
	FrontendURL    string
	// ReservedDatabaseNames are never handed to a tenant, on top of the
	// server's built-in databases
	ReservedDatabaseNames []string
}

// Dependencies groups the collaborators of OrganisationService
type Dependencies struct {
	Registry    Registry
	Tokens      *TokenManager
	Locks       *OrganisationLocks
	Provisioner DatabaseProvisioner
	Router      ConnectionRouter
	Applier     SchemaApplier
	Bootstrap   SupervisorCreator
	Script      schema.Source
	Events      *events.OrganisationEventPublisher
	Mailer      notification.Mailer
	Issuer      AccessTokenIssuer
}

// OrganisationService orchestrates tenant provisioning and administration
type OrganisationService struct {
	deps   Dependencies
	opts   Options
	names  domain.DatabaseNamePolicy
	now    func() time.Time
	logger *logger.Logger
}

// NewOrganisationService creates the orchestrator
func NewOrganisationService(deps Dependencies, opts Options, log *logger.Logger) *OrganisationService {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = DefaultCleanupTimeout
	}
	if opts.DefaultPlan == "" {
		opts.DefaultPlan = DefaultPlan
	}
	opts.FrontendURL = strings.TrimRight(opts.FrontendURL, "/")
	if deps.Locks == nil {
		deps.Locks = NewOrganisationLocks(nil)
	}
	if deps.Events == nil {
		deps.Events = events.Noop(log)
	}
	if deps.Mailer == nil {
		deps.Mailer = notification.NewDisabledMailer(log)
	}
	if deps.Script == nil {
		deps.Script = schema.DefaultSource()
	}

	return &OrganisationService{
		deps:   deps,
		opts:   opts,
		names:  domain.NewDatabaseNamePolicy(opts.ReservedDatabaseNames...),
		now:    time.Now,
		logger: log.WithComponent("provisioning"),
	}
}

// CreateOrganisation registers a new tenant. With FullCreation the database,
// schema and supervisor are provisioned synchronously; otherwise the tenant
// stays pending and a setup token is issued.
func (s *OrganisationService) CreateOrganisation(ctx context.Context, req *domain.CreateOrganisationRequest) (*domain.CreateOrganisationResult, error) {
	if req == nil {
		return nil, missingRequest()
	}
	if strings.TrimSpace(req.Nom) == "" {
		return nil, errors.Validation(map[string]string{"nom": "this field is required"})
	}
	name := req.DatabaseName
	if name == "" {
		name = domain.DatabaseNameFromNom(req.Nom)
	}
	if err := s.names.Check(name); err != nil {
		return nil, err
	}
	if req.FullCreation {
		if req.Supervisor == nil {
			return nil, errors.Validation(map[string]string{"supervisor": "is required for full creation"})
		}
		if err := validateSupervisor(req.Supervisor); err != nil {
			return nil, err
		}
	}

	plan := req.Plan
	if plan == "" {
		plan = s.opts.DefaultPlan
	}

	org := &domain.Organisation{
		Nom:          strings.TrimSpace(req.Nom),
		NomAffichage: req.NomAffichage,
		DatabaseName: name,
		EmailContact: req.EmailContact,
		Telephone:    req.Telephone,
		Adresse:      req.Adresse,
		Plan:         plan,
		Status:       domain.StatusPending,
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.ensureUnclaimed(ctx, name, 0); err != nil {
		return nil, err
	}

	if req.FullCreation {
		return s.createImmediate(ctx, org, *req.Supervisor, req.SendEmail)
	}
	return s.createDeferred(ctx, org, req.SendEmail)
}

func (s *OrganisationService) createImmediate(ctx context.Context, org *domain.Organisation, sup domain.SupervisorInput, sendEmail bool) (*domain.CreateOrganisationResult, error) {
	statements, err := s.loadStatements(ctx)
	if err != nil {
		return nil, err
	}

	// the unique database_name constraint rejects a concurrent duplicate here
	if err := s.deps.Registry.Organisations().Create(ctx, org); err != nil {
		return nil, err
	}

	log := s.logger.WithTenant(org.ID, org.DatabaseName)
	log.Info().Msg("immediate provisioning started")

	record, err := s.runPipeline(ctx, org, statements, sup)
	if err == nil {
		if err = s.deps.Registry.Organisations().MarkProvisioned(ctx, org.ID); err != nil {
			err = s.rollback(ctx, org.DatabaseName, err)
		}
	}
	if err != nil {
		s.forgetOrganisation(ctx, org.ID)
		s.deps.Events.PublishProvisioningFailed(ctx, org, err)
		log.Error().Err(err).Msg("immediate provisioning failed")
		return nil, err
	}

	org.MarkProvisioned()
	log.Info().Int64("supervisor_id", record.ID).Msg("immediate provisioning completed")

	s.deps.Events.PublishCreated(ctx, org, true)
	s.deps.Events.PublishProvisioned(ctx, org, record, events.PathImmediate)

	result := &domain.CreateOrganisationResult{Organisation: org, Supervisor: record}
	if sendEmail {
		result.Email = s.deliver(s.deps.Mailer.SendWelcome(ctx, s.welcomeEmail(org, record)))
	} else {
		result.Email.Skipped = true
	}
	return result, nil
}

func (s *OrganisationService) createDeferred(ctx context.Context, org *domain.Organisation, sendEmail bool) (*domain.CreateOrganisationResult, error) {
	var issued *domain.IssuedToken
	err := s.deps.Registry.InTx(ctx, func(orgs OrganisationStore, tokens TokenStore) error {
		if err := orgs.Create(ctx, org); err != nil {
			return err
		}
		var err error
		issued, err = s.deps.Tokens.issue(ctx, tokens, org.ID, org.EmailContact, 0)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithTenant(org.ID, org.DatabaseName).Info().Msg("organisation created, awaiting setup")
	s.deps.Events.PublishCreated(ctx, org, false)

	result := &domain.CreateOrganisationResult{
		Organisation: org,
		SetupToken:   issued.Token,
		SetupURL:     issued.SetupURL,
		ExpiresAt:    &issued.ExpiresAt,
	}
	if sendEmail {
		result.Email = s.deliver(s.deps.Mailer.SendSetupInvitation(ctx, notification.InvitationEmail{
			To:           org.EmailContact,
			Organisation: org.DisplayName(),
			SetupURL:     issued.SetupURL,
			ExpiresAt:    issued.ExpiresAt,
		}))
	} else {
		result.Email.Skipped = true
	}
	return result, nil
}

// CompleteSetup provisions a pending organisation on behalf of the holder of
// a valid setup token. The token is consumed only once the tenant is usable;
// any failure leaves it valid for a retry.
func (s *OrganisationService) CompleteSetup(ctx context.Context, token string, req *domain.CompleteSetupRequest) (*domain.CompleteSetupResult, error) {
	if req == nil {
		return nil, missingRequest()
	}
	if err := validateSupervisor(&req.Supervisor); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	_, org, err := s.deps.Tokens.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	release, err := s.deps.Locks.TryLock(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	// a concurrent run may have consumed the token before we got the lock
	_, org, err = s.deps.Tokens.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if org.Status != domain.StatusPending {
		return nil, errors.Conflict("organisation has already been set up")
	}

	if err := s.applySetupFields(ctx, org, req); err != nil {
		return nil, err
	}

	statements, err := s.loadStatements(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Registry.Organisations().UpdateSetupFields(ctx, org); err != nil {
		return nil, err
	}

	log := s.logger.WithTenant(org.ID, org.DatabaseName)
	log.Info().Msg("deferred provisioning started")

	record, err := s.runPipeline(ctx, org, statements, req.Supervisor)
	if err == nil {
		err = s.deps.Registry.InTx(ctx, func(orgs OrganisationStore, tokens TokenStore) error {
			if err := orgs.MarkProvisioned(ctx, org.ID); err != nil {
				return err
			}
			return s.deps.Tokens.consume(ctx, tokens, token)
		})
		if err != nil {
			err = s.rollback(ctx, org.DatabaseName, err)
		}
	}
	if err != nil {
		s.deps.Events.PublishProvisioningFailed(ctx, org, err)
		log.Error().Err(err).Msg("deferred provisioning failed, setup token left valid")
		return nil, err
	}

	org.MarkProvisioned()
	log.Info().Int64("supervisor_id", record.ID).Msg("deferred provisioning completed")
	s.deps.Events.PublishProvisioned(ctx, org, record, events.PathDeferred)

	result := &domain.CompleteSetupResult{Organisation: org, Supervisor: record}
	if s.deps.Issuer != nil {
		name := strings.TrimSpace(record.Prenom + " " + record.Nom)
		accessToken, expiresAt, err := s.deps.Issuer.GenerateAccessToken(
			jwt.SupervisorInfo(record.ID, record.Email, name, record.Role, org.ID, org.DatabaseName))
		if err != nil {
			log.Warn().Err(err).Msg("failed to issue supervisor access token")
		} else {
			result.AccessToken = accessToken
			result.ExpiresIn = int64(expiresAt.Sub(s.now()).Seconds())
		}
	}

	if err := s.deps.Mailer.SendWelcome(ctx, s.welcomeEmail(org, record)); err != nil {
		log.Warn().Err(err).Msg("welcome email not delivered")
	} else {
		result.WelcomeSent = true
	}

	return result, nil
}

// applySetupFields copies the optional organisation fields of req onto org,
// validating a database rename.
func (s *OrganisationService) applySetupFields(ctx context.Context, org *domain.Organisation, req *domain.CompleteSetupRequest) error {
	if name := req.DatabaseName; name != "" && name != org.DatabaseName {
		if err := s.names.Check(name); err != nil {
			return err
		}
		if err := s.ensureUnclaimed(ctx, name, org.ID); err != nil {
			return err
		}
		org.DatabaseName = name
	}
	// rows registered before a name was reserved must not reach the server either
	if err := s.names.Check(org.DatabaseName); err != nil {
		return err
	}

	if req.NomAffichage != nil {
		org.NomAffichage = req.NomAffichage
	}
	if req.EmailContact != nil && *req.EmailContact != "" {
		org.EmailContact = *req.EmailContact
	}
	if req.Telephone != nil {
		org.Telephone = req.Telephone
	}
	if req.Adresse != nil {
		org.Adresse = req.Adresse
	}
	switch {
	case req.Plan != "":
		org.Plan = req.Plan
	case org.Plan == "":
		org.Plan = s.opts.DefaultPlan
	}
	if req.LogoURL != nil {
		org.LogoURL = req.LogoURL
	}
	if smtp, ok := req.SMTP(org.Nom); ok {
		org.SMTPSettings = smtp
	}
	return nil
}

// ensureUnclaimed refuses a name another organisation holds, and a name the
// server already holds outside the registry. Only a tenant's own earlier
// failed run may be reclaimed by ProvisionDatabase.
func (s *OrganisationService) ensureUnclaimed(ctx context.Context, name string, exceptID int64) error {
	taken, err := s.deps.Registry.Organisations().DatabaseNameTaken(ctx, name, exceptID)
	if err != nil {
		return err
	}
	if taken {
		return errors.Conflict("an organisation with this database name already exists")
	}

	exists, err := s.deps.Provisioner.DatabaseExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		s.logger.Warn().Str("database", name).Msg("refusing a name held by a database outside the registry")
		return domain.DatabaseAlreadyExists(name)
	}
	return nil
}

func validateSupervisor(in *domain.SupervisorInput) error {
	return httputil.ValidateNested("supervisor", in)
}

func missingRequest() error {
	return errors.Validation(map[string]string{"request": "this field is required"})
}

// loadStatements reads and splits the tenant script. It runs before any
// database exists so a broken script never leaves one behind.
func (s *OrganisationService) loadStatements(ctx context.Context) ([]string, error) {
	script, err := s.deps.Script.Load(ctx)
	if err != nil {
		return nil, &domain.SchemaApplicationError{Index: 0, Err: err}
	}
	statements, err := schema.Split(script)
	if err != nil {
		return nil, &domain.SchemaApplicationError{Index: 0, Err: err}
	}
	return statements, nil
}

// runPipeline creates the database, applies the schema and creates the
// supervisor. A failure after the database exists drops it again.
func (s *OrganisationService) runPipeline(ctx context.Context, org *domain.Organisation, statements []string, sup domain.SupervisorInput) (*domain.SupervisorRecord, error) {
	ctx = tenant.WithTenant(ctx, org.ID, org.DatabaseName)
	name := org.DatabaseName

	// pooled handles from an earlier attempt would keep the old database busy
	s.evict(name)

	if err := s.deps.Provisioner.ProvisionDatabase(ctx, name); err != nil {
		return nil, err
	}

	conn, err := s.deps.Router.Connection(ctx, name)
	if err != nil {
		return nil, s.rollback(ctx, name, &domain.ProvisioningError{Database: name, Op: "connect", Err: err})
	}

	if err := s.deps.Applier.Execute(ctx, conn, statements); err != nil {
		return nil, s.rollback(ctx, name, err)
	}

	record, err := s.deps.Bootstrap.CreateSupervisor(ctx, conn, org.ID, sup)
	if err != nil {
		return nil, s.rollback(ctx, name, err)
	}
	return record, nil
}

// rollback drops name after cause, on a context that survives the caller's
// deadline. It returns cause, or a RollbackError when the drop failed too.
func (s *OrganisationService) rollback(ctx context.Context, name string, cause error) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CleanupTimeout)
	defer cancel()

	log := s.logger.With().Str("database", name).Logger()
	if stderrors.Is(cause, context.DeadlineExceeded) {
		log.Warn().Msg("provisioning deadline exceeded")
	}

	s.evict(name)
	if err := s.deps.Provisioner.DropDatabase(cleanupCtx, name); err != nil {
		log.Error().Err(err).AnErr("cause", cause).Msg("rollback failed, tenant database may be left behind")
		return &domain.RollbackError{Cause: cause, CleanupErr: err}
	}

	log.Info().Msg("tenant database rolled back")
	return cause
}

func (s *OrganisationService) evict(name string) {
	if err := s.deps.Router.Evict(name); err != nil {
		s.logger.Warn().Err(err).Str("database", name).Msg("failed to close tenant pool")
	}
}

// forgetOrganisation removes the pending row written by a failed immediate
// creation so the same name can be retried.
func (s *OrganisationService) forgetOrganisation(ctx context.Context, id int64) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CleanupTimeout)
	defer cancel()

	if err := s.deps.Registry.Organisations().Delete(cleanupCtx, id); err != nil {
		s.logger.Error().Err(err).Int64("organisation_id", id).Msg("failed to remove organisation after failed provisioning")
	}
}

func (s *OrganisationService) welcomeEmail(org *domain.Organisation, record *domain.SupervisorRecord) notification.WelcomeEmail {
	return notification.WelcomeEmail{
		To:           record.Email,
		Prenom:       record.Prenom,
		Username:     record.NomUtilisateur,
		Organisation: org.DisplayName(),
		LoginURL:     s.opts.FrontendURL + "/login",
	}
}

func (s *OrganisationService) deliver(err error) domain.EmailDeliveryState {
	if err != nil {
		s.logger.Warn().Err(err).Msg("email not delivered")
		return domain.EmailDeliveryState{Sent: false, Error: err.Error()}
	}
	return domain.EmailDeliveryState{Sent: true}
}

// ReissueToken issues a fresh setup token for a pending organisation
func (s *OrganisationService) ReissueToken(ctx context.Context, organisationID int64) (*domain.IssuedToken, error) {
	return s.deps.Tokens.Reissue(ctx, organisationID)
}

// DeleteToken removes an unused setup token
func (s *OrganisationService) DeleteToken(ctx context.Context, tokenID int64) error {
	return s.deps.Tokens.Delete(ctx, tokenID)
}

// ListTokens lists the setup tokens of an organisation
func (s *OrganisationService) ListTokens(ctx context.Context, organisationID int64) ([]domain.SetupTokenView, error) {
	return s.deps.Tokens.List(ctx, organisationID)
}

// ValidateToken returns the public view of the organisation a setup token belongs to
func (s *OrganisationService) ValidateToken(ctx context.Context, token string) (*domain.PublicOrganisation, *domain.SetupToken, error) {
	t, org, err := s.deps.Tokens.Validate(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	public := org.Public()
	return &public, t, nil
}

// GetOrganisationStatus compares the registry flags with the server: it
// checks pg_database and counts the tenant's users live.
func (s *OrganisationService) GetOrganisationStatus(ctx context.Context, organisationID int64) (*domain.StatusReport, error) {
	org, err := s.deps.Registry.Organisations().GetByID(ctx, organisationID)
	if err != nil {
		return nil, err
	}

	exists, err := s.deps.Provisioner.DatabaseExists(ctx, org.DatabaseName)
	if err != nil {
		return nil, err
	}

	var users int64
	if exists {
		conn, err := s.deps.Router.Connection(ctx, org.DatabaseName)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to tenant %s: %w", org.DatabaseName, err)
		}
		if users, err = bootstrap.CountUsers(ctx, conn); err != nil {
			return nil, err
		}
	}

	report := &domain.StatusReport{
		OrganisationID:   org.ID,
		DatabaseName:     org.DatabaseName,
		Status:           org.Status,
		DatabaseCreated:  exists,
		HasUsers:         users > 0,
		SetupCompleted:   org.SetupCompleted && exists && users > 0,
		UserCount:        users,
		Registry:         domain.RegistryFlags{DatabaseCreated: org.DatabaseCreated, HasUsers: org.HasUsers},
		CreatedAt:        org.CreatedAt,
		LastConnectionAt: org.LastConnectionAt,
	}
	report.Drift = report.DatabaseCreated != org.DatabaseCreated || report.HasUsers != org.HasUsers

	if report.Drift {
		s.logger.WithTenant(org.ID, org.DatabaseName).Warn().
			Bool("registry_database_created", org.DatabaseCreated).
			Bool("live_database_created", exists).
			Int64("users", users).
			Msg("registry flags drift from the server")
	}
	return report, nil
}

// ListOrganisations lists organisations newest first
func (s *OrganisationService) ListOrganisations(ctx context.Context, filter domain.OrganisationFilter) ([]*domain.Organisation, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, errors.Validation(map[string]string{"status": "must be one of: pending, active, inactive"})
	}
	return s.deps.Registry.Organisations().List(ctx, filter)
}

// GetOrganisation gets one organisation
func (s *OrganisationService) GetOrganisation(ctx context.Context, id int64) (*domain.Organisation, error) {
	return s.deps.Registry.Organisations().GetByID(ctx, id)
}

// Stats counts organisations per status
func (s *OrganisationService) Stats(ctx context.Context) (*domain.OrganisationStats, error) {
	return s.deps.Registry.Organisations().Stats(ctx)
}

// Activate re-enables an inactive organisation
func (s *OrganisationService) Activate(ctx context.Context, id int64) (*domain.Organisation, error) {
	return s.setStatus(ctx, id, domain.StatusActive)
}

// Deactivate suspends an active organisation
func (s *OrganisationService) Deactivate(ctx context.Context, id int64) (*domain.Organisation, error) {
	return s.setStatus(ctx, id, domain.StatusInactive)
}

func (s *OrganisationService) setStatus(ctx context.Context, id int64, to domain.OrganisationStatus) (*domain.Organisation, error) {
	orgs := s.deps.Registry.Organisations()
	org, err := orgs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org.Status == to {
		return org, nil
	}
	if !org.Status.CanTransitionTo(to) {
		return nil, errors.BadRequest(fmt.Sprintf("a %s organisation cannot become %s; pending organisations are activated by provisioning", org.Status, to))
	}

	ok, err := orgs.UpdateStatus(ctx, id, org.Status, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Conflict("organisation status changed concurrently")
	}

	from := org.Status
	org.Status = to
	s.logger.WithTenant(org.ID, org.DatabaseName).Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("organisation status changed")
	s.deps.Events.PublishStatusChanged(ctx, id, from, to)
	return org, nil
}

// UpdateOrganisation changes the descriptive fields of an organisation. The
// database name is fixed at creation.
func (s *OrganisationService) UpdateOrganisation(ctx context.Context, id int64, req *domain.UpdateOrganisationRequest) (*domain.Organisation, error) {
	if req == nil {
		return nil, missingRequest()
	}
	if req.Nom != nil && strings.TrimSpace(*req.Nom) == "" {
		return nil, errors.Validation(map[string]string{"nom": "this field is required"})
	}

	orgs := s.deps.Registry.Organisations()
	org, err := orgs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.DatabaseName != "" && req.DatabaseName != org.DatabaseName {
		return nil, errors.Validation(map[string]string{"database_name": "cannot be changed after creation"})
	}

	req.Apply(org)
	if err := orgs.Update(ctx, org); err != nil {
		return nil, err
	}

	s.logger.WithTenant(org.ID, org.DatabaseName).Info().Msg("organisation updated")
	return org, nil
}

// UpdateLogoPath points an organisation at a logo already stored by the caller
func (s *OrganisationService) UpdateLogoPath(ctx context.Context, id int64, logoURL string) (*domain.Organisation, error) {
	logoURL = strings.TrimSpace(logoURL)
	if logoURL == "" {
		return nil, errors.Validation(map[string]string{"logo_url": "this field is required"})
	}

	orgs := s.deps.Registry.Organisations()
	if err := orgs.UpdateLogo(ctx, id, logoURL); err != nil {
		return nil, err
	}
	return orgs.GetByID(ctx, id)
}

// RemoveOrganisation deletes an organisation and its setup tokens from the
// registry. The tenant database is left on the server.
func (s *OrganisationService) RemoveOrganisation(ctx context.Context, id int64) (*domain.RemovalResult, error) {
	release, err := s.deps.Locks.TryLock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	orgs := s.deps.Registry.Organisations()
	org, err := orgs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := orgs.Delete(ctx, id); err != nil {
		return nil, err
	}
	s.evict(org.DatabaseName)

	s.logger.WithTenant(org.ID, org.DatabaseName).Warn().
		Msg("organisation removed from the registry, tenant database kept")
	s.deps.Events.PublishRemoved(ctx, org)

	return &domain.RemovalResult{
		OrganisationID: org.ID,
		DatabaseName:   org.DatabaseName,
		DatabaseKept:   true,
		Message:        fmt.Sprintf("organisation removed; database %s was not deleted and must be dropped manually", org.DatabaseName),
	}, nil
}
