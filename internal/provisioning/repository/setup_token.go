package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/pkg/database"
	"github.com/shipnology/shipnology-backend/pkg/errors"
)

const setupTokenColumns = `
	id, token, organisation_id, email_destinataire, expires_at, used, used_at,
	created_at, generated_by, notes`

// SetupTokenRepository handles setup token persistence
type SetupTokenRepository struct {
	db database.Querier
}

// NewSetupTokenRepository creates a new setup token repository
func NewSetupTokenRepository(db database.Querier) *SetupTokenRepository {
	return &SetupTokenRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *SetupTokenRepository) WithTx(tx database.Querier) *SetupTokenRepository {
	return &SetupTokenRepository{db: tx}
}

// Create inserts t and fills its id and created_at
func (r *SetupTokenRepository) Create(ctx context.Context, t *domain.SetupToken) error {
	query := `
		INSERT INTO setup_tokens (token, organisation_id, email_destinataire, expires_at, used, generated_by, notes)
		VALUES ($1, $2, $3, $4, false, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		t.Token,
		t.OrganisationID,
		t.EmailDestinataire,
		t.ExpiresAt,
		t.GeneratedBy,
		t.Notes,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to insert setup token: %w", err)
	}
	return nil
}

// GetByToken gets a token by its value. Unknown values yield ErrTokenNotFound.
func (r *SetupTokenRepository) GetByToken(ctx context.Context, token string) (*domain.SetupToken, error) {
	var t domain.SetupToken
	query := `SELECT ` + setupTokenColumns + ` FROM setup_tokens WHERE token = $1`

	if err := r.db.GetContext(ctx, &t, query, token); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

// GetByID gets a token by id
func (r *SetupTokenRepository) GetByID(ctx context.Context, id int64) (*domain.SetupToken, error) {
	var t domain.SetupToken
	query := `SELECT ` + setupTokenColumns + ` FROM setup_tokens WHERE id = $1`

	if err := r.db.GetContext(ctx, &t, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFoundWithKey("setup_token")
		}
		return nil, err
	}
	return &t, nil
}

// Consume marks token used at now. It reports false when no unused row
// matched, leaving the caller to find out why.
func (r *SetupTokenRepository) Consume(ctx context.Context, token string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE setup_tokens SET used = true, used_at = $2 WHERE token = $1 AND used = false`,
		token, now)
	if err != nil {
		return false, fmt.Errorf("failed to consume setup token: %w", err)
	}
	return affected(res)
}

// ListByOrganisation returns the tokens of an organisation, newest first
func (r *SetupTokenRepository) ListByOrganisation(ctx context.Context, organisationID int64) ([]domain.SetupToken, error) {
	tokens := []domain.SetupToken{}
	query := `SELECT ` + setupTokenColumns + ` FROM setup_tokens WHERE organisation_id = $1 ORDER BY created_at DESC, id DESC`

	if err := r.db.SelectContext(ctx, &tokens, query, organisationID); err != nil {
		return nil, fmt.Errorf("failed to list setup tokens: %w", err)
	}
	return tokens, nil
}

// Delete removes an unused token. Used tokens are kept as the audit trail of
// the provisioning that consumed them.
func (r *SetupTokenRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM setup_tokens WHERE id = $1 AND used = false`, id)
	if err != nil {
		return fmt.Errorf("failed to delete setup token: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return errors.BadRequest("a used setup token cannot be deleted")
	}
	return nil
}
