// Package repository persists the control-plane registry: organisations and
// their setup tokens.
package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/pkg/database"
	"github.com/shipnology/shipnology-backend/pkg/errors"
)

const organisationColumns = `
	id, nom, nom_affichage, database_name, email_contact, telephone, adresse, plan,
	status, database_created, setup_completed, has_users, created_at, updated_at, last_connection_at,
	logo_url, smtp_enabled, smtp_host, smtp_port, smtp_user, smtp_password, smtp_from_email,
	smtp_from_name, smtp_use_tls`

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// OrganisationRepository handles organisation persistence
type OrganisationRepository struct {
	db database.Querier
}

// NewOrganisationRepository creates a new organisation repository
func NewOrganisationRepository(db database.Querier) *OrganisationRepository {
	return &OrganisationRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *OrganisationRepository) WithTx(tx database.Querier) *OrganisationRepository {
	return &OrganisationRepository{db: tx}
}

// Create inserts org as given and fills its id and timestamps. A taken
// database name comes back as a Conflict.
func (r *OrganisationRepository) Create(ctx context.Context, org *domain.Organisation) error {
	query := `
		INSERT INTO organisations (
			nom, nom_affichage, database_name, email_contact, telephone, adresse, plan,
			status, database_created, setup_completed, has_users
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		org.Nom,
		org.NomAffichage,
		org.DatabaseName,
		org.EmailContact,
		org.Telephone,
		org.Adresse,
		org.Plan,
		org.Status,
		org.DatabaseCreated,
		org.SetupCompleted,
		org.HasUsers,
	).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to insert organisation: %w", err)
	}
	return nil
}

// GetByID gets an organisation by id
func (r *OrganisationRepository) GetByID(ctx context.Context, id int64) (*domain.Organisation, error) {
	var org domain.Organisation
	query := `SELECT ` + organisationColumns + ` FROM organisations WHERE id = $1`

	if err := r.db.GetContext(ctx, &org, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFoundWithKey("organisation")
		}
		return nil, err
	}
	return &org, nil
}

// GetByDatabaseName gets an organisation by its tenant database name
func (r *OrganisationRepository) GetByDatabaseName(ctx context.Context, name string) (*domain.Organisation, error) {
	var org domain.Organisation
	query := `SELECT ` + organisationColumns + ` FROM organisations WHERE database_name = $1`

	if err := r.db.GetContext(ctx, &org, query, name); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFoundWithKey("organisation")
		}
		return nil, err
	}
	return &org, nil
}

// DatabaseNameTaken reports whether another organisation than exceptID uses name
func (r *OrganisationRepository) DatabaseNameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	var taken bool
	err := r.db.GetContext(ctx, &taken,
		`SELECT EXISTS (SELECT 1 FROM organisations WHERE database_name = $1 AND id <> $2)`, name, exceptID)
	return taken, err
}

// List returns organisations newest first, and the total matching filter
func (r *OrganisationRepository) List(ctx context.Context, filter domain.OrganisationFilter) ([]*domain.Organisation, int64, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		conditions = append(conditions,
			fmt.Sprintf("(nom ILIKE $%d OR nom_affichage ILIKE $%d OR database_name ILIKE $%d OR email_contact ILIKE $%d)", n, n, n, n))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM organisations`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count organisations: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM organisations%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		organisationColumns, where, len(args)-1, len(args))

	orgs := []*domain.Organisation{}
	if err := r.db.SelectContext(ctx, &orgs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list organisations: %w", err)
	}
	return orgs, total, nil
}

// Stats counts organisations per status
func (r *OrganisationRepository) Stats(ctx context.Context) (*domain.OrganisationStats, error) {
	var stats domain.OrganisationStats
	query := `
		SELECT
			count(*) AS total,
			count(*) FILTER (WHERE status = 'pending') AS pending,
			count(*) FILTER (WHERE status = 'active') AS active,
			count(*) FILTER (WHERE status = 'inactive') AS inactive
		FROM organisations
	`
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to compute organisation stats: %w", err)
	}
	return &stats, nil
}

// UpdateStatus moves id from one status to another. It reports false when
// the row was not in the from status.
func (r *OrganisationRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.OrganisationStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE organisations SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update organisation status: %w", err)
	}
	return affected(res)
}

// MarkProvisioned flips the progress flags and activates a pending organisation
func (r *OrganisationRepository) MarkProvisioned(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE organisations
		SET database_created = true, setup_completed = true, has_users = true,
		    status = 'active', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark organisation provisioned: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Conflict("organisation is no longer pending")
	}
	return nil
}

// UpdateSetupFields stores the fields a supervisor may change while the
// organisation is still pending, mail settings included.
func (r *OrganisationRepository) UpdateSetupFields(ctx context.Context, org *domain.Organisation) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE organisations
		SET nom_affichage = $2, database_name = $3, email_contact = $4, telephone = $5,
		    adresse = $6, plan = $7, logo_url = $8,
		    smtp_enabled = $9, smtp_host = $10, smtp_port = $11, smtp_user = $12,
		    smtp_password = $13, smtp_from_email = $14, smtp_from_name = $15, smtp_use_tls = $16,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, org.ID, org.NomAffichage, org.DatabaseName, org.EmailContact, org.Telephone, org.Adresse, org.Plan,
		org.LogoURL, org.SMTPEnabled, org.SMTPHost, org.SMTPPort, org.SMTPUser,
		org.SMTPPassword, org.SMTPFromEmail, org.SMTPFromName, org.SMTPUseTLS)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to update organisation: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Conflict("organisation is no longer pending")
	}
	return nil
}

// Update stores the descriptive fields of org. The database name and the
// lifecycle columns are left alone.
func (r *OrganisationRepository) Update(ctx context.Context, org *domain.Organisation) error {
	err := r.db.QueryRowxContext(ctx, `
		UPDATE organisations
		SET nom = $2, nom_affichage = $3, email_contact = $4, telephone = $5,
		    adresse = $6, plan = $7, logo_url = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, org.ID, org.Nom, org.NomAffichage, org.EmailContact, org.Telephone, org.Adresse, org.Plan, org.LogoURL,
	).Scan(&org.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFoundWithKey("organisation")
		}
		return fmt.Errorf("failed to update organisation: %w", err)
	}
	return nil
}

// UpdateLogo points id at a stored logo
func (r *OrganisationRepository) UpdateLogo(ctx context.Context, id int64, logoURL string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE organisations SET logo_url = $2, updated_at = NOW() WHERE id = $1`, id, logoURL)
	if err != nil {
		return fmt.Errorf("failed to update organisation logo: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NotFoundWithKey("organisation")
	}
	return nil
}

// Delete removes an organisation and, through the foreign key, its tokens
func (r *OrganisationRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM organisations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete organisation: %w", err)
	}
	return nil
}

// TouchLastConnection stamps last_connection_at for the tenant using
// databaseName. Older timestamps never overwrite newer ones.
func (r *OrganisationRepository) TouchLastConnection(ctx context.Context, databaseName string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE organisations
		SET last_connection_at = $2
		WHERE database_name = $1 AND (last_connection_at IS NULL OR last_connection_at < $2)
	`, databaseName, at)
	if err != nil {
		return false, fmt.Errorf("failed to update last connection: %w", err)
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
