// Package api provides HTTP handlers for the tour API.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/icarotours/panoapi/internal/middleware"
	"github.com/icarotours/panoapi/internal/origin"
	"github.com/icarotours/panoapi/internal/scene"
	"github.com/icarotours/panoapi/internal/tour"
)

// maxSceneBodyBytes bounds upsert request bodies. Scene documents are small;
// panorama images travel through the upload endpoint, never through here.
const maxSceneBodyBytes = 1 << 20

// SceneHandlers holds dependencies for scene HTTP handlers.
type SceneHandlers struct {
	service       *tour.Service
	metrics       *middleware.Metrics // optional
	defaultDomain string
}

// NewSceneHandlers creates a new SceneHandlers instance. metrics may be nil.
// defaultDomain is the last-resort resolution candidate for requests that
// carry no origin information; empty falls back to the built-in default.
func NewSceneHandlers(service *tour.Service, metrics *middleware.Metrics, defaultDomain string) *SceneHandlers {
	return &SceneHandlers{service: service, metrics: metrics, defaultDomain: defaultDomain}
}

// ResolveScenes handles GET /api/scenes/origin - the viewer bootstrap
// endpoint. The requesting domain is derived from the Origin header, the
// "origin" query parameter, or the Host header, in that order.
func (h *SceneHandlers) ResolveScenes(w http.ResponseWriter, r *http.Request) {
	// Host arrives as host[:port]; resolution wants the bare host.
	host := r.Host
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	candidates := []string{
		r.Header.Get("Origin"),
		r.URL.Query().Get("origin"),
		host,
		h.defaultDomain,
	}

	set, err := h.service.ResolveSceneSet(r.Context(), candidates)
	if err != nil {
		switch {
		case errors.Is(err, origin.ErrNotFound):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeTenantNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeTenantNotFound, "No origin registered for domain")
		case errors.Is(err, tour.ErrNoScenes):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "No scenes registered for domain")
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to resolve scenes")
		}
		return
	}

	ctx := middleware.SetOriginDomain(r.Context(), set.Domain)
	middleware.UpdateResponseContext(w, ctx)
	writeJSON(w, ctx, http.StatusOK, set)
}

// GetScene handles GET /api/scenes/{id} - returns a single-scene viewer
// fragment keyed by the numeric scene id.
func (h *SceneHandlers) GetScene(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Scene ID must be an integer")
		return
	}

	doc, err := h.service.GetScene(r.Context(), id)
	if err != nil {
		if errors.Is(err, scene.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeSceneNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeSceneNotFound, "Scene not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve scene")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, doc)
}

// UpsertScene handles POST /api/scenes - creates or updates a scene for the
// requesting origin. The body is a single scene input document; the scene id
// decides whether this is a create or an update.
func (h *SceneHandlers) UpsertScene(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSceneBodyBytes))
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read request body")
		return
	}

	input, err := scene.ParseSceneInput(body)
	if err != nil {
		var verr *scene.ValidationError
		if errors.As(err, &verr) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteErrorFields(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Scene validation failed", verr.Fields)
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	rawOrigin := r.Header.Get("Origin")
	if rawOrigin == "" {
		rawOrigin = r.URL.Query().Get("origin")
	}

	persisted, created, err := h.service.UpsertScene(r.Context(), rawOrigin, input)
	if err != nil {
		var verr *scene.ValidationError
		switch {
		case errors.As(err, &verr):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteErrorFields(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Scene validation failed", verr.Fields)
		case errors.Is(err, origin.ErrNotFound):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeTenantNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeTenantNotFound, "No origin registered for domain")
		case errors.Is(err, scene.ErrOriginConflict):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeReferentialConflict)
			WriteError(w, ctx, http.StatusConflict, ErrCodeReferentialConflict, "Scene references a missing origin")
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to save scene")
		}
		return
	}

	if h.metrics != nil {
		if created {
			h.metrics.IncSceneUpsert("created")
		} else {
			h.metrics.IncSceneUpsert("updated")
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	ctx := middleware.SetOriginDomain(r.Context(), persisted.Domain)
	middleware.UpdateResponseContext(w, ctx)
	writeJSON(w, ctx, status, map[string]any{
		"created": created,
		"data":    persisted,
	})
}

// DeleteScene handles DELETE /api/scenes/{id} - soft-deletes a scene.
// Deleting an unknown or already-deleted scene is a no-op success.
func (h *SceneHandlers) DeleteScene(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Scene ID must be an integer")
		return
	}

	if _, err := h.service.DeleteScene(r.Context(), id); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to delete scene")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
