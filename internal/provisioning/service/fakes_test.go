package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shipnology/shipnology-backend/internal/auth/jwt"
	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/internal/provisioning/events"
	"github.com/shipnology/shipnology-backend/internal/provisioning/notification"
	"github.com/shipnology/shipnology-backend/internal/provisioning/schema"
	"github.com/shipnology/shipnology-backend/pkg/database"
	"github.com/shipnology/shipnology-backend/pkg/errors"
	"github.com/shipnology/shipnology-backend/pkg/logger"
	"github.com/shipnology/shipnology-backend/pkg/testutil"
)

// memRegistry is an in-memory Registry. InTx restores the previous state when
// fn fails.
type memRegistry struct {
	mu        sync.Mutex
	orgs      map[int64]domain.Organisation
	tokens    map[int64]domain.SetupToken
	nextOrg   int64
	nextToken int64
	now       func() time.Time

	markProvisionedErr error
}

func newMemRegistry(now func() time.Time) *memRegistry {
	return &memRegistry{
		orgs:   make(map[int64]domain.Organisation),
		tokens: make(map[int64]domain.SetupToken),
		now:    now,
	}
}

func (r *memRegistry) Organisations() OrganisationStore { return memOrgs{r} }
func (r *memRegistry) Tokens() TokenStore               { return memTokens{r} }

func (r *memRegistry) InTx(ctx context.Context, fn func(orgs OrganisationStore, tokens TokenStore) error) error {
	r.mu.Lock()
	orgs := make(map[int64]domain.Organisation, len(r.orgs))
	for k, v := range r.orgs {
		orgs[k] = v
	}
	tokens := make(map[int64]domain.SetupToken, len(r.tokens))
	for k, v := range r.tokens {
		tokens[k] = v
	}
	r.mu.Unlock()

	if err := fn(memOrgs{r}, memTokens{r}); err != nil {
		r.mu.Lock()
		r.orgs, r.tokens = orgs, tokens
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memRegistry) org(id int64) (domain.Organisation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orgs[id]
	return o, ok
}

func (r *memRegistry) tokenByValue(token string) (domain.SetupToken, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.Token == token {
			return t, true
		}
	}
	return domain.SetupToken{}, false
}

type memOrgs struct{ r *memRegistry }

func (s memOrgs) Create(_ context.Context, org *domain.Organisation) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	for _, o := range s.r.orgs {
		if o.DatabaseName == org.DatabaseName {
			return errors.Conflict("an organisation with this database name already exists")
		}
	}
	s.r.nextOrg++
	org.ID = s.r.nextOrg
	org.CreatedAt = s.r.now()
	org.UpdatedAt = org.CreatedAt
	s.r.orgs[org.ID] = *org
	return nil
}

func (s memOrgs) GetByID(_ context.Context, id int64) (*domain.Organisation, error) {
	o, ok := s.r.org(id)
	if !ok {
		return nil, errors.NotFoundWithKey("organisation")
	}
	return &o, nil
}

func (s memOrgs) DatabaseNameTaken(_ context.Context, name string, exceptID int64) (bool, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	for _, o := range s.r.orgs {
		if o.DatabaseName == name && o.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (s memOrgs) List(_ context.Context, filter domain.OrganisationFilter) ([]*domain.Organisation, int64, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	var out []*domain.Organisation
	for _, o := range s.r.orgs {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(o.Nom), strings.ToLower(filter.Search)) {
			continue
		}
		o := o
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, int64(len(out)), nil
}

func (s memOrgs) Stats(context.Context) (*domain.OrganisationStats, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	stats := &domain.OrganisationStats{}
	for _, o := range s.r.orgs {
		stats.Total++
		switch o.Status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusActive:
			stats.Active++
		case domain.StatusInactive:
			stats.Inactive++
		}
	}
	return stats, nil
}

func (s memOrgs) UpdateStatus(_ context.Context, id int64, from, to domain.OrganisationStatus) (bool, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	o, ok := s.r.orgs[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	s.r.orgs[id] = o
	return true, nil
}

func (s memOrgs) MarkProvisioned(_ context.Context, id int64) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if s.r.markProvisionedErr != nil {
		return s.r.markProvisionedErr
	}
	o, ok := s.r.orgs[id]
	if !ok || o.Status != domain.StatusPending {
		return errors.Conflict("organisation is no longer pending")
	}
	o.MarkProvisioned()
	s.r.orgs[id] = o
	return nil
}

func (s memOrgs) UpdateSetupFields(_ context.Context, org *domain.Organisation) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	o, ok := s.r.orgs[org.ID]
	if !ok || o.Status != domain.StatusPending {
		return errors.Conflict("organisation is no longer pending")
	}
	s.r.orgs[org.ID] = *org
	return nil
}

func (s memOrgs) Update(_ context.Context, org *domain.Organisation) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	o, ok := s.r.orgs[org.ID]
	if !ok {
		return errors.NotFoundWithKey("organisation")
	}
	o.Nom, o.NomAffichage, o.EmailContact = org.Nom, org.NomAffichage, org.EmailContact
	o.Telephone, o.Adresse, o.Plan, o.LogoURL = org.Telephone, org.Adresse, org.Plan, org.LogoURL
	o.UpdatedAt = s.r.now()
	org.UpdatedAt = o.UpdatedAt
	s.r.orgs[org.ID] = o
	return nil
}

func (s memOrgs) UpdateLogo(_ context.Context, id int64, logoURL string) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	o, ok := s.r.orgs[id]
	if !ok {
		return errors.NotFoundWithKey("organisation")
	}
	o.LogoURL = &logoURL
	s.r.orgs[id] = o
	return nil
}

func (s memOrgs) Delete(_ context.Context, id int64) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if _, ok := s.r.orgs[id]; !ok {
		return errors.NotFoundWithKey("organisation")
	}
	delete(s.r.orgs, id)
	for tid, t := range s.r.tokens {
		if t.OrganisationID == id {
			delete(s.r.tokens, tid)
		}
	}
	return nil
}

type memTokens struct{ r *memRegistry }

func (s memTokens) Create(_ context.Context, t *domain.SetupToken) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.nextToken++
	t.ID = s.r.nextToken
	t.CreatedAt = s.r.now()
	s.r.tokens[t.ID] = *t
	return nil
}

func (s memTokens) GetByToken(_ context.Context, token string) (*domain.SetupToken, error) {
	t, ok := s.r.tokenByValue(token)
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return &t, nil
}

func (s memTokens) GetByID(_ context.Context, id int64) (*domain.SetupToken, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	t, ok := s.r.tokens[id]
	if !ok {
		return nil, errors.NotFoundWithKey("setup_token")
	}
	return &t, nil
}

func (s memTokens) Consume(_ context.Context, token string, now time.Time) (bool, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	for id, t := range s.r.tokens {
		if t.Token == token && !t.Used {
			t.Used = true
			t.UsedAt = &now
			s.r.tokens[id] = t
			return true, nil
		}
	}
	return false, nil
}

func (s memTokens) ListByOrganisation(_ context.Context, organisationID int64) ([]domain.SetupToken, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	var out []domain.SetupToken
	for _, t := range s.r.tokens {
		if t.OrganisationID == organisationID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s memTokens) Delete(_ context.Context, id int64) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	t, ok := s.r.tokens[id]
	if !ok || t.Used {
		return errors.BadRequest("setup token not found or already used")
	}
	delete(s.r.tokens, id)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeProvisioner struct {
	mu        sync.Mutex
	created   []string
	dropped   []string
	existing  map[string]bool
	createErr error
	dropErr   error
}

func (p *fakeProvisioner) ProvisionDatabase(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return p.createErr
	}
	p.created = append(p.created, name)
	p.existing[name] = true
	return nil
}

func (p *fakeProvisioner) DropDatabase(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dropErr != nil {
		return p.dropErr
	}
	p.dropped = append(p.dropped, name)
	delete(p.existing, name)
	return nil
}

func (p *fakeProvisioner) DatabaseExists(_ context.Context, name string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.existing[name], nil
}

func (p *fakeProvisioner) snapshot() (created, dropped []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.created...), append([]string(nil), p.dropped...)
}

type fakeRouter struct {
	mu      sync.Mutex
	conn    database.Querier
	connErr error
	evicted []string
}

func (r *fakeRouter) Connection(context.Context, string) (database.Querier, error) {
	if r.connErr != nil {
		return nil, r.connErr
	}
	return r.conn, nil
}

func (r *fakeRouter) Evict(name string) error {
	r.mu.Lock()
	r.evicted = append(r.evicted, name)
	r.mu.Unlock()
	return nil
}

// fakeApplier records statements. When started is set it signals there and
// waits on release before returning.
type fakeApplier struct {
	mu         sync.Mutex
	err        error
	statements [][]string
	started    chan struct{}
	release    chan struct{}
}

func (a *fakeApplier) Execute(_ context.Context, _ schema.Execer, statements []string) error {
	a.mu.Lock()
	a.statements = append(a.statements, statements)
	err := a.err
	started, release := a.started, a.release
	a.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	return err
}

type fakeBootstrap struct {
	mu     sync.Mutex
	err    error
	inputs []domain.SupervisorInput
	orgIDs []int64
}

func (b *fakeBootstrap) CreateSupervisor(_ context.Context, _ database.Querier, organisationID int64, in domain.SupervisorInput) (*domain.SupervisorRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	b.inputs = append(b.inputs, in)
	b.orgIDs = append(b.orgIDs, organisationID)
	return &domain.SupervisorRecord{
		ID:             int64(len(b.inputs)),
		Prenom:         in.Prenom,
		Nom:            in.Nom,
		NomUtilisateur: in.Username(),
		Email:          in.Email,
		Role:           domain.SupervisorRole,
		IsSuperviseur:  true,
	}, nil
}

type fakeMailer struct {
	mu          sync.Mutex
	err         error
	invitations []notification.InvitationEmail
	welcomes    []notification.WelcomeEmail
}

func (m *fakeMailer) SendSetupInvitation(_ context.Context, msg notification.InvitationEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.invitations = append(m.invitations, msg)
	return nil
}

func (m *fakeMailer) SendWelcome(_ context.Context, msg notification.WelcomeEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.welcomes = append(m.welcomes, msg)
	return nil
}

type fakeIssuer struct {
	now func() time.Time
}

func (i fakeIssuer) GenerateAccessToken(user *jwt.UserInfo) (string, time.Time, error) {
	return "access-" + user.ID, i.now().Add(15 * time.Minute), nil
}

const testScript = `
CREATE TABLE personnel (id serial PRIMARY KEY);
CREATE TABLE clients (id serial PRIMARY KEY);
`

type harness struct {
	svc     *OrganisationService
	reg     *memRegistry
	tokens  *TokenManager
	clock   *fakeClock
	prov    *fakeProvisioner
	router  *fakeRouter
	applier *fakeApplier
	boot    *fakeBootstrap
	mailer  *fakeMailer
	events  *testutil.MockPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	reg := newMemRegistry(clock.Now)
	h := &harness{
		reg:     reg,
		clock:   clock,
		prov:    &fakeProvisioner{existing: make(map[string]bool)},
		router:  &fakeRouter{},
		applier: &fakeApplier{},
		boot:    &fakeBootstrap{},
		mailer:  &fakeMailer{},
		events:  testutil.NewMockPublisher(),
	}

	seq := 0
	h.tokens = NewTokenManager(reg, 24*time.Hour, "https://app.shipnology.test/", logger.Nop(),
		WithClock(clock.Now),
		WithTokenGenerator(func() string {
			seq++
			return fmt.Sprintf("token-%d", seq)
		}))

	h.svc = NewOrganisationService(Dependencies{
		Registry:    reg,
		Tokens:      h.tokens,
		Locks:       NewOrganisationLocks(nil),
		Provisioner: h.prov,
		Router:      h.router,
		Applier:     h.applier,
		Bootstrap:   h.boot,
		Script:      schema.StaticSource(testScript),
		Events:      events.NewWithSender(h.events, logger.Nop()),
		Mailer:      h.mailer,
		Issuer:      fakeIssuer{now: clock.Now},
	}, Options{FrontendURL: "https://app.shipnology.test"}, logger.Nop())
	h.svc.now = clock.Now

	return h
}

func testSupervisor() domain.SupervisorInput {
	return domain.SupervisorInput{
		Prenom:    "Awa",
		Nom:       "Diallo",
		Email:     "awa.diallo@acme.example",
		Telephone: "+221770000000",
		Password:  "s3cret-pass",
	}
}
