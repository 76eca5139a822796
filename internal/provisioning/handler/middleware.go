package handler

import (
	"net/http"
	"strings"

	"github.com/shipnology/shipnology-backend/internal/auth/jwt"
	"github.com/shipnology/shipnology-backend/pkg/actor"
	"github.com/shipnology/shipnology-backend/pkg/errors"
	"github.com/shipnology/shipnology-backend/pkg/httputil"
	"github.com/shipnology/shipnology-backend/pkg/logger"
)

// TokenValidator is satisfied by *jwt.Manager
type TokenValidator interface {
	ValidateAccessToken(token string) (*jwt.Claims, error)
}

// Authenticator turns a platform admin bearer token into the request actor
type Authenticator struct {
	tokens TokenValidator
	logger *logger.Logger
}

// NewAuthenticator creates the middleware set
func NewAuthenticator(tokens TokenValidator, log *logger.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, logger: log}
}

// Middleware validates the JWT and attaches the actor. Tenant tokens, such as
// the one handed to a freshly created supervisor, are refused here.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.ErrorLocalized(w, r, errors.Unauthorized("missing authorization header"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.ErrorLocalized(w, r, errors.Unauthorized("invalid authorization header format"))
			return
		}

		claims, err := a.tokens.ValidateAccessToken(parts[1])
		if err != nil {
			a.logger.Debug().Err(err).Msg("token validation failed")
			httputil.ErrorLocalized(w, r, err)
			return
		}

		if claims.DatabaseName != "" || claims.OrganisationID != 0 {
			a.logger.Warn().
				Str("user_id", claims.UserID).
				Str("database", claims.DatabaseName).
				Msg("tenant token used on the platform API")
			httputil.ErrorLocalized(w, r, errors.Forbidden("tenant tokens cannot administer organisations"))
			return
		}

		ctx := actor.WithActor(r.Context(), &actor.Actor{
			ID:          claims.UserID,
			Email:       claims.Email,
			Role:        claims.Role,
			Permissions: claims.Permissions,
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission rejects actors lacking permission
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := actor.FromContext(r.Context())
			if a == nil || !a.Can(permission) {
				httputil.ErrorLocalized(w, r, errors.Forbidden("missing permission "+permission))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
