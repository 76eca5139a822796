// Package tenant carries the organisation being provisioned through a call chain
// so that deep components can tag their logs without extra parameters.
package tenant

import (
	"context"
	"errors"
)

type contextKey string

const (
	organisationIDKey contextKey = "organisation_id"
	databaseNameKey   contextKey = "database_name"
)

// ErrNoTenantInContext is returned when tenant context is missing
var ErrNoTenantInContext = errors.New("no tenant in context")

// WithTenant attaches the organisation ID and its database name
func WithTenant(ctx context.Context, organisationID int64, databaseName string) context.Context {
	ctx = context.WithValue(ctx, organisationIDKey, organisationID)
	return context.WithValue(ctx, databaseNameKey, databaseName)
}

// OrganisationID extracts the organisation ID from context
func OrganisationID(ctx context.Context) (int64, error) {
	id, ok := ctx.Value(organisationIDKey).(int64)
	if !ok || id == 0 {
		return 0, ErrNoTenantInContext
	}
	return id, nil
}

// DatabaseName extracts the tenant database name from context
func DatabaseName(ctx context.Context) (string, error) {
	name, ok := ctx.Value(databaseNameKey).(string)
	if !ok || name == "" {
		return "", ErrNoTenantInContext
	}
	return name, nil
}
