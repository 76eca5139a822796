// Package actor identifies who performs an administrative action. Handlers put
// the authenticated operator in the context, services read it for audit fields
// such as setup_tokens.generated_by.
package actor

import (
	"context"
	"fmt"

	"github.com/shipnology/shipnology-backend/pkg/permissions"
)

const systemID = "system"

// Actor represents the entity performing an action in the system.
type Actor struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"-"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a.IsSystem() {
		return systemID
	}
	return fmt.Sprintf("%s (%s)", a.ID, a.Email)
}

// Can reports whether the actor holds the permission, wildcards included.
// The system actor can do everything.
func (a *Actor) Can(permission string) bool {
	if a.IsSystem() {
		return true
	}
	return permissions.HasPermission(a.Permissions, permission)
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// SystemActor returns an Actor representing the service itself.
func SystemActor() *Actor {
	return &Actor{ID: systemID, Email: "system@shipnology.local"}
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	return a == nil || a.ID == systemID
}

// IDFromContext returns the acting ID, "system" when nobody is attached
func IDFromContext(ctx context.Context) string {
	a := FromContext(ctx)
	if a.IsSystem() {
		return systemID
	}
	return a.ID
}
