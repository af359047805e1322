// Package scene provides models, repository, and viewer-document translation
// for panorama scenes and their embedded navigation hotspots.
//
// A scene carries two identifiers: the authoritative integer id (primary key
// since the schema migration) and the legacy string scene_key that older
// viewer deployments still link hotspots by. Both are preserved; scene_key
// defaults to the numeric id rendered as a string when not supplied.
package scene

import "time"

// Hotspot kinds. Only these two are supported.
const (
	HotspotInfo   = "info"
	HotspotCustom = "custom"
)

// DefaultHFOV is the horizontal field of view applied when a scene is
// created without one.
const DefaultHFOV = 100

// Hotspot is an interactive point embedded in a scene: informational
// ("info", carries text) or navigational ("custom", links to another scene
// by its legacy key). Hotspots have no lifecycle of their own; the embedded
// map is replaced wholesale whenever the owning scene is rewritten.
type Hotspot struct {
	Kind     string  `json:"kind"`
	Pitch    float64 `json:"pitch"`
	Yaw      float64 `json:"yaw"`
	CSSClass string  `json:"css_class,omitempty"`

	// TextContent is the tooltip body for "info" hotspots.
	TextContent string `json:"text_content,omitempty"`

	// TargetSceneKey is the navigation target for "custom" hotspots,
	// referencing the destination scene's legacy key.
	TargetSceneKey string `json:"target_scene_key,omitempty"`
}

// Scene represents a single panoramic viewpoint owned by an origin.
type Scene struct {
	ID       int64   `json:"id"`
	SceneKey string  `json:"scene_key"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Pitch    float64 `json:"pitch"`
	Yaw      float64 `json:"yaw"`
	HFOV     float64 `json:"hfov"`

	// Hotspots is the embedded, authoritative hotspot map keyed by
	// hotspot key. The normalized hotspots table is a derived projection.
	Hotspots map[string]Hotspot `json:"hotspots"`

	OriginID int64 `json:"origin_id"`

	// Domain is a denormalized copy of the owning origin's domain, kept
	// consistent at write time so reads can filter without a join.
	Domain string `json:"domain"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
