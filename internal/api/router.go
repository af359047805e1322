// Package api provides HTTP handlers for the tour API.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/icarotours/panoapi/internal/middleware"
)

// RouterConfig collects the handler groups mounted on the server mux.
type RouterConfig struct {
	Origins *OriginHandlers
	Scenes  *SceneHandlers
	Uploads *UploadHandlers // optional; nil disables /api/upload
	Health  *HealthHandlers
	Metrics prometheus.Gatherer // optional; nil disables /metrics
}

// NewRouter builds the server mux. Method matching and path parameters use
// the patterns introduced with Go 1.22 ServeMux.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	// Origin management.
	mux.HandleFunc("POST /api/origins", cfg.Origins.CreateOrigin)
	mux.HandleFunc("GET /api/origins", cfg.Origins.ListOrigins)
	mux.HandleFunc("GET /api/origins/{id}", cfg.Origins.GetOrigin)
	mux.HandleFunc("DELETE /api/origins/{id}", cfg.Origins.DeleteOrigin)
	mux.HandleFunc("GET /api/origins/domain/{domain}", cfg.Origins.GetOriginByDomain)

	// Scene storage and viewer resolution. The /api/scenes/origin route must
	// be registered alongside /api/scenes/{id}; the more specific literal
	// segment wins under ServeMux precedence.
	mux.HandleFunc("GET /api/scenes/origin", cfg.Scenes.ResolveScenes)
	mux.HandleFunc("GET /api/scenes/{id}", cfg.Scenes.GetScene)
	mux.HandleFunc("POST /api/scenes", cfg.Scenes.UpsertScene)
	mux.HandleFunc("DELETE /api/scenes/{id}", cfg.Scenes.DeleteScene)

	if cfg.Uploads != nil {
		mux.HandleFunc("POST /api/upload", cfg.Uploads.SignUpload)
	}

	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		writeJSON(w, r.Context(), http.StatusOK, map[string]string{
			"service": "panoapi",
			"version": "1.0.0",
		})
	})

	return mux
}
