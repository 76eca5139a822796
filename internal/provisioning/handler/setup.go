package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
	"github.com/shipnology/shipnology-backend/pkg/httputil"
	"github.com/shipnology/shipnology-backend/pkg/logger"
)

// SetupHandler serves the unauthenticated setup pages reached through an invitation link
type SetupHandler struct {
	service Provisioning
	logger  *logger.Logger
}

// NewSetupHandler creates a new setup handler
func NewSetupHandler(svc Provisioning, log *logger.Logger) *SetupHandler {
	return &SetupHandler{
		service: svc,
		logger:  log,
	}
}

// TokenInfo is what the setup page learns from a valid token
type TokenInfo struct {
	Organisation *domain.PublicOrganisation `json:"organisation"`
	ExpiresAt    time.Time                  `json:"expires_at"`
}

// Validate handles GET /public/setup/{token}
func (h *SetupHandler) Validate(w http.ResponseWriter, r *http.Request) {
	org, token, err := h.service.ValidateToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, TokenInfo{Organisation: org, ExpiresAt: token.ExpiresAt})
}

// Complete handles POST /public/setup/{token}/complete
func (h *SetupHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req domain.CompleteSetupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.service.CompleteSetup(r.Context(), chi.URLParam(r, "token"), &req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
