package service

import (
	"context"
	stderrors "errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/pkg/actor"
	"github.com/shipnology/shipnology-backend/pkg/errors"
	"github.com/shipnology/shipnology-backend/pkg/logger"
)

// TokenManager issues, validates and consumes setup tokens
type TokenManager struct {
	registry    Registry
	ttl         time.Duration
	frontendURL string
	now         func() time.Time
	newToken    func() string
	logger      *logger.Logger
}

// TokenOption configures a TokenManager
type TokenOption func(*TokenManager)

// WithClock replaces time.Now
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// WithTokenGenerator replaces the UUIDv4 generator
func WithTokenGenerator(gen func() string) TokenOption {
	return func(m *TokenManager) { m.newToken = gen }
}

// NewTokenManager creates a token manager issuing tokens valid for ttl and
// setup links below frontendURL.
func NewTokenManager(registry Registry, ttl time.Duration, frontendURL string, log *logger.Logger, opts ...TokenOption) *TokenManager {
	if ttl <= 0 {
		ttl = domain.DefaultTokenTTL
	}
	m := &TokenManager{
		registry:    registry,
		ttl:         ttl,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
		newToken:    uuid.NewString,
		logger:      log.WithComponent("setup-tokens"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetupURL is the front-end link carrying token
func (m *TokenManager) SetupURL(token string) string {
	return m.frontendURL + "/setup?token=" + url.QueryEscape(token)
}

// Issue persists a new unused token for organisationID, valid for ttl (the
// manager default when zero).
func (m *TokenManager) Issue(ctx context.Context, organisationID int64, email string, ttl time.Duration) (*domain.IssuedToken, error) {
	return m.issue(ctx, m.registry.Tokens(), organisationID, email, ttl)
}

func (m *TokenManager) issue(ctx context.Context, store TokenStore, organisationID int64, email string, ttl time.Duration) (*domain.IssuedToken, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}

	t := &domain.SetupToken{
		Token:             m.newToken(),
		OrganisationID:    organisationID,
		EmailDestinataire: email,
		ExpiresAt:         m.now().Add(ttl),
	}
	if a := actor.FromContext(ctx); a != nil && !a.IsSystem() {
		generatedBy := a.Email
		if generatedBy == "" {
			generatedBy = a.ID
		}
		t.GeneratedBy = &generatedBy
	}

	if err := store.Create(ctx, t); err != nil {
		return nil, err
	}

	m.logger.Info().
		Int64("organisation_id", organisationID).
		Int64("token_id", t.ID).
		Time("expires_at", t.ExpiresAt).
		Msg("setup token issued")

	return &domain.IssuedToken{
		ID:        t.ID,
		Token:     t.Token,
		ExpiresAt: t.ExpiresAt,
		SetupURL:  m.SetupURL(t.Token),
	}, nil
}

// Validate checks token and returns it with its organisation. It never marks
// the token used.
func (m *TokenManager) Validate(ctx context.Context, token string) (*domain.SetupToken, *domain.Organisation, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil, domain.ErrTokenNotFound
	}

	t, err := m.registry.Tokens().GetByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if err := t.Check(m.now()); err != nil {
		return nil, nil, err
	}

	org, err := m.registry.Organisations().GetByID(ctx, t.OrganisationID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return nil, nil, domain.ErrTokenNotFound
		}
		return nil, nil, err
	}
	return t, org, nil
}

// Consume marks token used. It succeeds at most once per token.
func (m *TokenManager) Consume(ctx context.Context, token string) error {
	return m.consume(ctx, m.registry.Tokens(), token)
}

func (m *TokenManager) consume(ctx context.Context, store TokenStore, token string) error {
	now := m.now()
	ok, err := store.Consume(ctx, token, now)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	t, err := store.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	if t.Used {
		return domain.ErrTokenAlreadyUsed
	}
	if err := t.Check(now); err != nil {
		return err
	}
	return domain.ErrTokenAlreadyUsed
}

// Reissue creates a fresh token for a pending organisation. Older tokens are
// left untouched.
func (m *TokenManager) Reissue(ctx context.Context, organisationID int64) (*domain.IssuedToken, error) {
	org, err := m.registry.Organisations().GetByID(ctx, organisationID)
	if err != nil {
		return nil, err
	}
	if org.Status != domain.StatusPending {
		return nil, errors.BadRequest("setup tokens can only be issued for a pending organisation")
	}
	return m.Issue(ctx, org.ID, org.EmailContact, 0)
}

// Delete removes an unused token
func (m *TokenManager) Delete(ctx context.Context, tokenID int64) error {
	t, err := m.registry.Tokens().GetByID(ctx, tokenID)
	if err != nil {
		return err
	}
	if t.Used {
		return errors.BadRequest("a used setup token cannot be deleted")
	}
	if err := m.registry.Tokens().Delete(ctx, tokenID); err != nil {
		return err
	}

	m.logger.Info().Int64("token_id", tokenID).Int64("organisation_id", t.OrganisationID).Msg("setup token deleted")
	return nil
}

// List returns the tokens of an organisation with their state at now
func (m *TokenManager) List(ctx context.Context, organisationID int64) ([]domain.SetupTokenView, error) {
	if _, err := m.registry.Organisations().GetByID(ctx, organisationID); err != nil {
		return nil, err
	}

	tokens, err := m.registry.Tokens().ListByOrganisation(ctx, organisationID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	views := make([]domain.SetupTokenView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, t.View(now))
	}
	return views, nil
}
