// Package tour orchestrates tenant resolution and scene-set translation.
// A raw origin string is normalized to a canonical domain, resolved to an
// origin, and the origin's scenes are translated into the viewer document.
// This is the sole path behind the "get scenes for my domain" operation.
package tour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/icarotours/panoapi/internal/origin"
	"github.com/icarotours/panoapi/internal/scene"
	"github.com/icarotours/panoapi/internal/stats"
	"github.com/icarotours/panoapi/internal/tracing"
)

// ErrNoScenes is returned when a resolved origin owns no live scenes.
var ErrNoScenes = errors.New("no scenes registered for origin")

// SceneSet is the response document for a resolved domain: the viewer
// document plus tenant metadata and configuration passthrough.
type SceneSet struct {
	Domain        string               `json:"domain"`
	OriginID      int64                `json:"origin_id"`
	TotalScenes   int                  `json:"total_scenes"`
	Configuration map[string]any       `json:"configuration"`
	Scenes        scene.ViewerDocument `json:"data"`
}

// Service wires the domain normalizer, tenant resolver, scene repository,
// and shape translator into the request-facing operations.
type Service struct {
	resolver origin.Resolver
	origins  origin.Repository
	scenes   scene.Repository
	upserts  *stats.UpsertStats
	logger   *slog.Logger
}

// NewService creates a tour service. resolver may be a cached decorator
// around origins; when nil, origins is used directly.
func NewService(origins origin.Repository, scenes scene.Repository, resolver origin.Resolver, upserts *stats.UpsertStats, logger *slog.Logger) *Service {
	if resolver == nil {
		resolver = origins
	}
	if upserts == nil {
		upserts = stats.NewUpsertStats()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		resolver: resolver,
		origins:  origins,
		scenes:   scenes,
		upserts:  upserts,
		logger:   logger,
	}
}

// ResolveSceneSet resolves the first usable origin candidate to a tenant
// and returns its viewer document. Every failure is returned to the caller;
// nothing is swallowed on this path.
func (s *Service) ResolveSceneSet(ctx context.Context, candidates []string) (*SceneSet, error) {
	ctx, endSpan := tracing.StartSpan(ctx, "resolve_scene_set")
	var err error
	defer func() { endSpan(err) }()

	domain := origin.DomainFromCandidates(candidates)

	o, err := s.resolver.ResolveDomain(ctx, domain)
	if err != nil {
		if errors.Is(err, origin.ErrNotFound) {
			return nil, fmt.Errorf("domain %q: %w", domain, origin.ErrNotFound)
		}
		return nil, err
	}

	scenes, err := s.scenes.ListByOrigin(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if len(scenes) == 0 {
		err = fmt.Errorf("domain %q: %w", domain, ErrNoScenes)
		return nil, err
	}

	return &SceneSet{
		Domain:        o.Domain,
		OriginID:      o.ID,
		TotalScenes:   len(scenes),
		Configuration: o.Configuration,
		Scenes:        scene.ToViewerDocument(scenes),
	}, nil
}

// UpsertScene resolves the write-path tenant for rawOrigin and creates or
// updates the scene. The origin must already be registered; scene writes
// never provision tenants.
func (s *Service) UpsertScene(ctx context.Context, rawOrigin string, input *scene.SceneInput) (*scene.Scene, bool, error) {
	ctx, endSpan := tracing.StartSpan(ctx, "upsert_scene")
	var err error
	defer func() { endSpan(err) }()

	domain := origin.NormalizeDomain(rawOrigin)
	if domain == "" {
		err = fmt.Errorf("origin is required: %w", origin.ErrNotFound)
		return nil, false, err
	}

	o, err := s.resolver.ResolveDomain(ctx, domain)
	if err != nil {
		return nil, false, err
	}

	persisted, created, err := s.scenes.Upsert(ctx, o, input)
	if err != nil {
		return nil, false, err
	}
	s.upserts.Record(created)
	return persisted, created, nil
}

// GetScene returns the viewer fragment for a single scene, keyed by its id.
func (s *Service) GetScene(ctx context.Context, id int64) (scene.ViewerDocument, error) {
	sc, err := s.scenes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return scene.ToViewerDocument([]*scene.Scene{sc}), nil
}

// DeleteScene soft-deletes a scene. Deleting an already-deleted or unknown
// scene reports existed=false and no error.
func (s *Service) DeleteScene(ctx context.Context, id int64) (bool, error) {
	return s.scenes.SoftDelete(ctx, id)
}

// SceneSummary is the id/title pair embedded in origin listings.
type SceneSummary struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// OriginListing is an origin plus the summaries of its live scenes.
type OriginListing struct {
	*origin.Origin
	Scenes []SceneSummary `json:"scenes"`
}

// ListOrigins returns all registered origins, each carrying the id/title
// summaries of its live scenes.
func (s *Service) ListOrigins(ctx context.Context) ([]OriginListing, error) {
	ctx, endSpan := tracing.StartSpan(ctx, "list_origins")
	var err error
	defer func() { endSpan(err) }()

	origins, err := s.origins.List(ctx)
	if err != nil {
		return nil, err
	}

	listings := make([]OriginListing, 0, len(origins))
	for _, o := range origins {
		scenes, err := s.scenes.ListByOrigin(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		summaries := make([]SceneSummary, 0, len(scenes))
		for _, sc := range scenes {
			summaries = append(summaries, SceneSummary{ID: sc.ID, Title: sc.Title})
		}
		listings = append(listings, OriginListing{Origin: o, Scenes: summaries})
	}
	return listings, nil
}

// RegisterOrigin registers a new tenant domain after normalizing it.
func (s *Service) RegisterOrigin(ctx context.Context, o *origin.Origin) error {
	o.Domain = origin.NormalizeDomain(o.Domain)
	if o.Domain == "" {
		return &scene.ValidationError{Fields: []string{"domain: required"}}
	}
	if o.Name == "" {
		return &scene.ValidationError{Fields: []string{"name: required"}}
	}
	return s.origins.Create(ctx, o)
}

// OriginSceneSet returns the viewer document for an explicitly named domain
// (the registered origin lookup endpoint, as opposed to request-derived
// resolution). An origin with zero scenes is returned with an empty map.
func (s *Service) OriginSceneSet(ctx context.Context, domain string) (*SceneSet, error) {
	o, err := s.resolver.ResolveDomain(ctx, origin.NormalizeDomain(domain))
	if err != nil {
		return nil, err
	}
	scenes, err := s.scenes.ListByOrigin(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &SceneSet{
		Domain:        o.Domain,
		OriginID:      o.ID,
		TotalScenes:   len(scenes),
		Configuration: o.Configuration,
		Scenes:        scene.ToViewerDocument(scenes),
	}, nil
}

// UpsertStats exposes the cumulative upsert counters.
func (s *Service) UpsertStats() *stats.UpsertStats {
	return s.upserts
}
