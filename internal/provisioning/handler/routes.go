package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/shipnology/shipnology-backend/pkg/httputil"
	"github.com/shipnology/shipnology-backend/pkg/permissions"
)

// Routes mounts the public setup surface and the admin organisation API on r
func Routes(r chi.Router, orgs *OrganisationHandler, setup *SetupHandler, auth *Authenticator) {
	r.Route("/public/setup/{token}", func(r chi.Router) {
		r.Get("/", setup.Validate)
		r.Post("/complete", setup.Complete)
	})

	r.Route("/organisations", func(r chi.Router) {
		r.Use(auth.Middleware, httputil.TrackActor)

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(permissions.OrganisationsRead))
			r.Get("/", orgs.List)
			r.Get("/stats", orgs.Stats)
			r.Get("/{id}", orgs.Get)
			r.Get("/{id}/status", orgs.Status)
			r.Get("/{id}/tokens", orgs.ListTokens)
		})

		r.With(RequirePermission(permissions.OrganisationsCreate)).Post("/", orgs.Create)

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(permissions.OrganisationsUpdate))
			r.Put("/{id}", orgs.Update)
			r.Put("/{id}/logo", orgs.UpdateLogo)
		})
		r.With(RequirePermission(permissions.OrganisationsDelete)).Delete("/{id}", orgs.Remove)

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(permissions.OrganisationsStatus))
			r.Post("/{id}/activate", orgs.Activate)
			r.Post("/{id}/deactivate", orgs.Deactivate)
		})

		r.With(RequirePermission(permissions.OrganisationsTokens)).Post("/{id}/tokens", orgs.ReissueToken)
		r.With(RequirePermission(permissions.OrganisationsTokensDel)).Delete("/tokens/{tokenId}", orgs.DeleteToken)
	})
}
