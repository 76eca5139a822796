package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/shipnology/shipnology-backend/pkg/errors"
)

// SQLSTATE codes the provisioning flow reacts to
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeNotNullViolation    = "23502"
	CodeCheckViolation      = "23514"
	CodeDuplicateDatabase   = "42P04"
	CodeInvalidCatalogName  = "3D000"
	CodeObjectInUse         = "55006"
	CodeQueryCanceled       = "57014"
	CodeUndefinedTable      = "42P01"
)

// PQCode returns the SQLSTATE of a lib/pq error, or "" for anything else.
func PQCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case CodeCheckViolation:
		return mapCheckConstraint(pqErr)

	case CodeUniqueViolation:
		return errors.Conflict(formatConstraintMessage(pqErr))

	case CodeForeignKeyViolation:
		return errors.BadRequest("referenced record does not exist")

	case CodeNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	case CodeDuplicateDatabase:
		return errors.Conflict("a database with this name already exists")

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "database_name"):
		return errors.Validation(map[string]string{
			"database_name": "must start with a lowercase letter and contain only lowercase letters, digits and underscores",
		})

	case strings.Contains(constraint, "status"):
		return errors.Validation(map[string]string{
			"status": "must be one of: pending, active, inactive",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "database_name"):
		return "an organisation with this database name already exists"
	case strings.Contains(constraint, "token"):
		return "setup token collision, retry the request"
	case strings.Contains(constraint, "email"):
		return "this email address is already registered"
	default:
		return "a record with these values already exists"
	}
}
