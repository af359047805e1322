package scene

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/icarotours/panoapi/internal/origin"
)

// Common errors for scene operations.
var (
	// ErrNotFound is returned when a scene id does not exist or is deleted.
	ErrNotFound = errors.New("scene not found")

	// ErrOriginConflict is returned when a scene write references a missing
	// or deleted origin.
	ErrOriginConflict = errors.New("scene references a missing or deleted origin")
)

// Repository defines scene data operations, scoped to an owning origin.
//
// Upsert semantics: when input.ID is set, the write is a conflict-aware
// partial overwrite keyed on id — supplied fields replace stored ones,
// omitted fields are preserved. When input.ID is absent a new scene is
// created with a store-assigned sequential id. Every write stamps the
// owning origin's id and domain onto the row and defaults scene_key from
// the numeric id when no legacy key is supplied.
type Repository interface {
	// Upsert creates or updates a scene for the given origin.
	// Returns the persisted scene and whether a new row was created.
	Upsert(ctx context.Context, owner *origin.Origin, input *SceneInput) (*Scene, bool, error)

	// GetByID retrieves a scene by id, excluding soft-deleted scenes.
	GetByID(ctx context.Context, id int64) (*Scene, error)

	// ListByOrigin returns all live scenes for an origin ordered by id.
	ListByOrigin(ctx context.Context, originID int64) ([]*Scene, error)

	// SoftDelete marks a scene deleted. Returns true when a live row was
	// marked, false when none existed (idempotent no-op on repeat calls).
	SoftDelete(ctx context.Context, id int64) (bool, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu     sync.RWMutex
	scenes map[int64]*Scene
	nextID int64
}

// NewInMemoryRepository creates a new in-memory scene repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{scenes: make(map[int64]*Scene)}
}

// Upsert creates or updates a scene with partial-overwrite semantics.
func (r *InMemoryRepository) Upsert(_ context.Context, owner *origin.Origin, input *SceneInput) (*Scene, bool, error) {
	if owner == nil || owner.DeletedAt != nil {
		return nil, false, ErrOriginConflict
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if input.ID != nil {
		if existing, ok := r.scenes[*input.ID]; ok {
			applyInput(existing, input)
			existing.OriginID = owner.ID
			existing.Domain = owner.Domain
			existing.UpdatedAt = now
			// A write revives a soft-deleted row.
			existing.DeletedAt = nil
			cp := cloneScene(existing)
			return cp, false, nil
		}
	}

	if err := validateCreate(input); err != nil {
		return nil, false, err
	}

	s := &Scene{HFOV: DefaultHFOV, Hotspots: map[string]Hotspot{}}
	applyInput(s, input)
	if input.ID != nil {
		s.ID = *input.ID
		if s.ID > r.nextID {
			r.nextID = s.ID
		}
	} else {
		r.nextID++
		s.ID = r.nextID
	}
	if s.SceneKey == "" {
		s.SceneKey = strconv.FormatInt(s.ID, 10)
	}
	s.OriginID = owner.ID
	s.Domain = owner.Domain
	s.CreatedAt = now
	s.UpdatedAt = now

	r.scenes[s.ID] = s
	return cloneScene(s), true, nil
}

// GetByID retrieves a live scene by id.
func (r *InMemoryRepository) GetByID(_ context.Context, id int64) (*Scene, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scenes[id]
	if !ok || s.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return cloneScene(s), nil
}

// ListByOrigin returns all live scenes for an origin ordered by id.
func (r *InMemoryRepository) ListByOrigin(_ context.Context, originID int64) ([]*Scene, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Scene
	for _, s := range r.scenes {
		if s.DeletedAt == nil && s.OriginID == originID {
			out = append(out, cloneScene(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SoftDelete marks a scene deleted; repeat calls are no-ops.
func (r *InMemoryRepository) SoftDelete(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.scenes[id]
	if !ok || s.DeletedAt != nil {
		return false, nil
	}
	now := time.Now()
	s.DeletedAt = &now
	s.UpdatedAt = now
	return true, nil
}

// CountByOrigin reports live scenes for an origin; wired into the origin
// repository's restrict-on-delete guard.
func (r *InMemoryRepository) CountByOrigin(originID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.scenes {
		if s.DeletedAt == nil && s.OriginID == originID {
			n++
		}
	}
	return n
}

// applyInput copies supplied fields onto the scene, leaving omitted fields
// untouched. A non-nil hotspot map replaces the stored map wholesale.
func applyInput(s *Scene, in *SceneInput) {
	if in.SceneKey != nil {
		s.SceneKey = *in.SceneKey
	}
	if in.Title != nil {
		s.Title = *in.Title
	}
	if in.ImageURL != nil {
		s.ImageURL = *in.ImageURL
	}
	if in.Pitch != nil {
		s.Pitch = *in.Pitch
	}
	if in.Yaw != nil {
		s.Yaw = *in.Yaw
	}
	if in.HFOV != nil {
		s.HFOV = *in.HFOV
	}
	if in.Hotspots != nil {
		s.Hotspots = make(map[string]Hotspot, len(in.Hotspots))
		for k, h := range in.Hotspots {
			s.Hotspots[k] = h
		}
	}
}

func cloneScene(s *Scene) *Scene {
	cp := *s
	if s.Hotspots != nil {
		cp.Hotspots = make(map[string]Hotspot, len(s.Hotspots))
		for k, h := range s.Hotspots {
			cp.Hotspots[k] = h
		}
	}
	return &cp
}
