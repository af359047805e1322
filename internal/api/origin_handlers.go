// Package api provides HTTP handlers for the tour API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/icarotours/panoapi/internal/middleware"
	"github.com/icarotours/panoapi/internal/origin"
	"github.com/icarotours/panoapi/internal/scene"
	"github.com/icarotours/panoapi/internal/tour"
)

// CreateOriginRequest represents the request body for registering an origin.
type CreateOriginRequest struct {
	Name          string         `json:"name"`
	Domain        string         `json:"domain"`
	Active        *bool          `json:"active,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// CacheInvalidator drops cached domain resolutions after origin writes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, domain string)
}

// OriginHandlers holds dependencies for origin HTTP handlers.
type OriginHandlers struct {
	repo    origin.Repository
	service *tour.Service
	cache   CacheInvalidator // optional
}

// NewOriginHandlers creates a new OriginHandlers instance. cache may be nil
// when no resolution cache is configured.
func NewOriginHandlers(repo origin.Repository, service *tour.Service, cache CacheInvalidator) *OriginHandlers {
	return &OriginHandlers{repo: repo, service: service, cache: cache}
}

// CreateOrigin handles POST /api/origins - registers a new tenant domain.
func (h *OriginHandlers) CreateOrigin(w http.ResponseWriter, r *http.Request) {
	var req CreateOriginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	o := &origin.Origin{
		Name:          strings.TrimSpace(req.Name),
		Domain:        req.Domain,
		Active:        active,
		Configuration: req.Configuration,
	}

	if err := h.service.RegisterOrigin(r.Context(), o); err != nil {
		var verr *scene.ValidationError
		switch {
		case errors.As(err, &verr):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteErrorFields(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Origin validation failed", verr.Fields)
		case errors.Is(err, origin.ErrDomainTaken):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeDomainConflict)
			WriteError(w, ctx, http.StatusConflict, ErrCodeDomainConflict, "Domain is already registered")
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to register origin")
		}
		return
	}

	writeJSON(w, r.Context(), http.StatusCreated, o)
}

// ListOrigins handles GET /api/origins - lists registered origins with
// per-origin scene summaries.
func (h *OriginHandlers) ListOrigins(w http.ResponseWriter, r *http.Request) {
	listings, err := h.service.ListOrigins(r.Context())
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list origins")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, map[string]any{
		"total": len(listings),
		"data":  listings,
	})
}

// GetOrigin handles GET /api/origins/{id}.
func (h *OriginHandlers) GetOrigin(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Origin ID must be an integer")
		return
	}

	o, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, origin.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Origin not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve origin")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, o)
}

// GetOriginByDomain handles GET /api/origins/domain/{domain} - returns the
// origin's scene set for an explicitly named domain.
func (h *OriginHandlers) GetOriginByDomain(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	if domain == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Domain is required")
		return
	}

	set, err := h.service.OriginSceneSet(r.Context(), domain)
	if err != nil {
		if errors.Is(err, origin.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeTenantNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeTenantNotFound, "No origin registered for domain")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to resolve domain")
		return
	}

	ctx := middleware.SetOriginDomain(r.Context(), set.Domain)
	middleware.UpdateResponseContext(w, ctx)
	writeJSON(w, ctx, http.StatusOK, set)
}

// DeleteOrigin handles DELETE /api/origins/{id} - soft-deletes an origin.
// Origins with live scenes cannot be deleted.
func (h *OriginHandlers) DeleteOrigin(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Origin ID must be an integer")
		return
	}

	o, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, origin.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Origin not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve origin")
		return
	}

	if _, err := h.repo.SoftDelete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, origin.ErrHasScenes):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeConflict)
			WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "Origin still has live scenes")
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to delete origin")
		}
		return
	}

	if h.cache != nil {
		h.cache.Invalidate(r.Context(), o.Domain)
	}

	w.WriteHeader(http.StatusNoContent)
}
