// Package handler exposes the provisioning service over HTTP
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/pkg/actor"
	"github.com/shipnology/shipnology-backend/pkg/errors"
	"github.com/shipnology/shipnology-backend/pkg/httputil"
	"github.com/shipnology/shipnology-backend/pkg/logger"
)

// Provisioning is the service surface used by the handlers. It is satisfied by
// *service.OrganisationService.
type Provisioning interface {
	CreateOrganisation(ctx context.Context, req *domain.CreateOrganisationRequest) (*domain.CreateOrganisationResult, error)
	CompleteSetup(ctx context.Context, token string, req *domain.CompleteSetupRequest) (*domain.CompleteSetupResult, error)
	ValidateToken(ctx context.Context, token string) (*domain.PublicOrganisation, *domain.SetupToken, error)
	ReissueToken(ctx context.Context, organisationID int64) (*domain.IssuedToken, error)
	DeleteToken(ctx context.Context, tokenID int64) error
	ListTokens(ctx context.Context, organisationID int64) ([]domain.SetupTokenView, error)
	GetOrganisationStatus(ctx context.Context, organisationID int64) (*domain.StatusReport, error)
	ListOrganisations(ctx context.Context, filter domain.OrganisationFilter) ([]*domain.Organisation, int64, error)
	GetOrganisation(ctx context.Context, id int64) (*domain.Organisation, error)
	Stats(ctx context.Context) (*domain.OrganisationStats, error)
	Activate(ctx context.Context, id int64) (*domain.Organisation, error)
	Deactivate(ctx context.Context, id int64) (*domain.Organisation, error)
	UpdateOrganisation(ctx context.Context, id int64, req *domain.UpdateOrganisationRequest) (*domain.Organisation, error)
	UpdateLogoPath(ctx context.Context, id int64, logoURL string) (*domain.Organisation, error)
	RemoveOrganisation(ctx context.Context, id int64) (*domain.RemovalResult, error)
}

// OrganisationHandler handles the admin organisation endpoints
type OrganisationHandler struct {
	service Provisioning
	logger  *logger.Logger
}

// NewOrganisationHandler creates a new organisation handler
func NewOrganisationHandler(svc Provisioning, log *logger.Logger) *OrganisationHandler {
	return &OrganisationHandler{
		service: svc,
		logger:  log,
	}
}

// List lists organisations, newest first
func (h *OrganisationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	filter := domain.OrganisationFilter{
		Status: domain.OrganisationStatus(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("search"),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}

	orgs, total, err := h.service.ListOrganisations(r.Context(), filter)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, orgs, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Stats returns organisation counts per status
func (h *OrganisationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, stats)
}

// Get gets an organisation by ID
func (h *OrganisationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	org, err := h.service.GetOrganisation(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, org)
}

// Create registers an organisation, provisioning it right away when
// full_creation is set
func (h *OrganisationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrganisationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.service.CreateOrganisation(r.Context(), &req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	h.logger.Info().
		Int64("organisation_id", result.Organisation.ID).
		Str("database", result.Organisation.DatabaseName).
		Bool("full_creation", req.FullCreation).
		Str("actor", actor.IDFromContext(r.Context())).
		Msg("organisation created")

	httputil.Created(w, result)
}

// Update changes the descriptive fields of an organisation
func (h *OrganisationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	var req domain.UpdateOrganisationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	org, err := h.service.UpdateOrganisation(r.Context(), id, &req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, org)
}

// UpdateLogo handles PUT /organisations/{id}/logo
func (h *OrganisationHandler) UpdateLogo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	var req domain.UpdateLogoRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	org, err := h.service.UpdateLogoPath(r.Context(), id, req.LogoURL)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, org)
}

// Remove deletes an organisation from the registry. Its database is kept.
func (h *OrganisationHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.service.RemoveOrganisation(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	h.logger.Warn().
		Int64("organisation_id", result.OrganisationID).
		Str("database", result.DatabaseName).
		Str("actor", actor.IDFromContext(r.Context())).
		Msg("organisation removed, tenant database kept")

	httputil.JSON(w, http.StatusOK, result)
}

// Status compares registry flags with the live server
func (h *OrganisationHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	report, err := h.service.GetOrganisationStatus(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// Activate handles POST /organisations/{id}/activate
func (h *OrganisationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.Activate)
}

// Deactivate handles POST /organisations/{id}/deactivate
func (h *OrganisationHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.Deactivate)
}

func (h *OrganisationHandler) changeStatus(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (*domain.Organisation, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	org, err := fn(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, org)
}

// ListTokens lists the setup tokens of an organisation
func (h *OrganisationHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	tokens, err := h.service.ListTokens(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, tokens)
}

// ReissueToken issues a fresh setup token for a pending organisation
func (h *OrganisationHandler) ReissueToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	issued, err := h.service.ReissueToken(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, issued)
}

// DeleteToken removes an unused setup token
func (h *OrganisationHandler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tokenId")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	if err := h.service.DeleteToken(r.Context(), id); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.NoContent(w)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.BadRequest("invalid " + name)
	}
	return id, nil
}
