package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/internal/provisioning/repository"
	"github.com/shipnology/shipnology-backend/pkg/database"
)

// OrganisationStore is the registry view of organisations
type OrganisationStore interface {
	Create(ctx context.Context, org *domain.Organisation) error
	GetByID(ctx context.Context, id int64) (*domain.Organisation, error)
	DatabaseNameTaken(ctx context.Context, name string, exceptID int64) (bool, error)
	List(ctx context.Context, filter domain.OrganisationFilter) ([]*domain.Organisation, int64, error)
	Stats(ctx context.Context) (*domain.OrganisationStats, error)
	UpdateStatus(ctx context.Context, id int64, from, to domain.OrganisationStatus) (bool, error)
	MarkProvisioned(ctx context.Context, id int64) error
	UpdateSetupFields(ctx context.Context, org *domain.Organisation) error
	Update(ctx context.Context, org *domain.Organisation) error
	UpdateLogo(ctx context.Context, id int64, logoURL string) error
	Delete(ctx context.Context, id int64) error
}

// TokenStore is the registry view of setup tokens
type TokenStore interface {
	Create(ctx context.Context, t *domain.SetupToken) error
	GetByToken(ctx context.Context, token string) (*domain.SetupToken, error)
	GetByID(ctx context.Context, id int64) (*domain.SetupToken, error)
	Consume(ctx context.Context, token string, now time.Time) (bool, error)
	ListByOrganisation(ctx context.Context, organisationID int64) ([]domain.SetupToken, error)
	Delete(ctx context.Context, id int64) error
}

// Registry hands out stores, optionally bound to one transaction
type Registry interface {
	Organisations() OrganisationStore
	Tokens() TokenStore
	InTx(ctx context.Context, fn func(orgs OrganisationStore, tokens TokenStore) error) error
}

// SQLRegistry is the control-plane registry on PostgreSQL
type SQLRegistry struct {
	db     *database.DB
	orgs   *repository.OrganisationRepository
	tokens *repository.SetupTokenRepository
}

// NewSQLRegistry creates the registry on db
func NewSQLRegistry(db *database.DB) *SQLRegistry {
	return &SQLRegistry{
		db:     db,
		orgs:   repository.NewOrganisationRepository(db),
		tokens: repository.NewSetupTokenRepository(db),
	}
}

// Organisations implements Registry
func (r *SQLRegistry) Organisations() OrganisationStore { return r.orgs }

// Tokens implements Registry
func (r *SQLRegistry) Tokens() TokenStore { return r.tokens }

// InTx implements Registry
func (r *SQLRegistry) InTx(ctx context.Context, fn func(orgs OrganisationStore, tokens TokenStore) error) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return fn(r.orgs.WithTx(tx), r.tokens.WithTx(tx))
	})
}
