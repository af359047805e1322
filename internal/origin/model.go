// Package origin provides models and repository for registered tenant
// origins. An origin is a domain that owns a private set of panorama scenes;
// every inbound request is resolved to at most one origin by its domain.
//
// Domain matching is case-insensitive: the normalizer lowercases the
// canonical host and Create stores the domain lowercased, so lookups stay
// exact string matches against the stored column.
package origin

import "time"

// Origin represents a registered tenant domain.
type Origin struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Active bool   `json:"active"`

	// Configuration carries arbitrary per-tenant viewer settings
	// (theme, logo, etc.) passed through to the client untouched.
	Configuration map[string]any `json:"configuration"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
