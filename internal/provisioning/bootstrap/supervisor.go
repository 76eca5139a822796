// Package bootstrap seeds a freshly schema'd tenant database with its first
// administrative account.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/pkg/database"
	"github.com/shipnology/shipnology-backend/pkg/logger"
)

const insertSupervisorQuery = `
	INSERT INTO personnel (
		organisation_id, nom, prenom, nom_utilisateur, role,
		telephone, email, genre, statut, mot_de_passe, is_superviseur
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true)
	RETURNING id, prenom, nom, nom_utilisateur, email, role, is_superviseur`

// Bootstrapper creates the supervisor inside a tenant database
type Bootstrapper struct {
	hasher PasswordHasher
	logger *logger.Logger
}

// New creates a Bootstrapper hashing passwords with hasher
func New(hasher PasswordHasher, log *logger.Logger) *Bootstrapper {
	return &Bootstrapper{
		hasher: hasher,
		logger: log.WithComponent("tenant-bootstrap"),
	}
}

// CreateSupervisor inserts the administrative account of organisationID into
// conn. Only the hash of the password is written.
func (b *Bootstrapper) CreateSupervisor(ctx context.Context, conn database.Querier, organisationID int64, in domain.SupervisorInput) (*domain.SupervisorRecord, error) {
	hash, err := b.hasher.Hash(in.Password)
	if err != nil {
		return nil, &domain.BootstrapError{Err: err}
	}

	var record domain.SupervisorRecord
	err = conn.QueryRowxContext(ctx, insertSupervisorQuery,
		organisationID,
		in.Nom,
		in.Prenom,
		in.Username(),
		domain.SupervisorRole,
		in.Telephone,
		in.Email,
		in.GenreOrDefault(),
		domain.SupervisorStatut,
		hash,
	).StructScan(&record)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, &domain.BootstrapError{Err: fmt.Errorf("%s: %w", appErr.Message, err)}
		}
		return nil, &domain.BootstrapError{Err: err}
	}

	b.logger.Info().
		Int64("organisation_id", organisationID).
		Int64("supervisor_id", record.ID).
		Str("username", record.NomUtilisateur).
		Msg("supervisor created")

	return &record, nil
}

// CountUsers returns the number of personnel rows in a tenant database. A
// tenant whose schema was never applied counts zero users.
func CountUsers(ctx context.Context, conn database.Querier) (int64, error) {
	var n int64
	if err := conn.GetContext(ctx, &n, `SELECT count(*) FROM personnel`); err != nil {
		if database.PQCode(err) == database.CodeUndefinedTable {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count tenant users: %w", err)
	}
	return n, nil
}
