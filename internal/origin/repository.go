package origin

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// Common errors for origin operations.
var (
	// ErrNotFound is returned when no origin is registered for a domain or id.
	ErrNotFound = errors.New("origin not found")

	// ErrDomainTaken is returned when creating an origin whose domain is
	// already claimed by a live origin.
	ErrDomainTaken = errors.New("domain already registered")

	// ErrHasScenes is returned when deleting an origin that still owns
	// live scenes (restrict-on-delete).
	ErrHasScenes = errors.New("origin still owns scenes")
)

// Resolver is the read-side seam used by request paths: it maps a canonical
// domain to its owning origin. Implementations must never create an origin.
type Resolver interface {
	// ResolveDomain returns the live origin whose stored domain matches the
	// canonical domain or one of its scheme-prefixed variants.
	// Returns ErrNotFound when no origin matches.
	ResolveDomain(ctx context.Context, domain string) (*Origin, error)
}

// Repository defines origin data operations.
type Repository interface {
	Resolver

	// Create registers a new origin and assigns its ID.
	// Returns ErrDomainTaken when a live origin already claims the domain.
	Create(ctx context.Context, o *Origin) error

	// GetByID retrieves a live origin by id. Returns ErrNotFound otherwise.
	GetByID(ctx context.Context, id int64) (*Origin, error)

	// List returns all live origins ordered by name.
	List(ctx context.Context) ([]*Origin, error)

	// SoftDelete marks an origin deleted. Returns false when no live origin
	// existed (idempotent no-op), ErrHasScenes when scenes still reference it.
	SoftDelete(ctx context.Context, id int64) (bool, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	origins map[int64]*Origin
	nextID  int64

	// sceneCounter reports live scene counts per origin so SoftDelete can
	// enforce restrict-on-delete without a storage dependency. Optional.
	sceneCounter func(originID int64) int
}

// NewInMemoryRepository creates a new in-memory origin repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{origins: make(map[int64]*Origin)}
}

// SetSceneCounter wires a live-scene count source for restrict-on-delete.
func (r *InMemoryRepository) SetSceneCounter(fn func(originID int64) int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sceneCounter = fn
}

// Create registers a new origin, enforcing domain uniqueness among live rows.
func (r *InMemoryRepository) Create(_ context.Context, o *Origin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	domain := strings.ToLower(strings.TrimSpace(o.Domain))
	for _, existing := range r.origins {
		if existing.DeletedAt == nil && strings.EqualFold(existing.Domain, domain) {
			return ErrDomainTaken
		}
	}

	r.nextID++
	now := time.Now()
	o.ID = r.nextID
	o.Domain = domain
	o.CreatedAt = now
	o.UpdatedAt = now
	if o.Configuration == nil {
		o.Configuration = map[string]any{}
	}

	cp := *o
	r.origins[o.ID] = &cp
	return nil
}

// ResolveDomain matches the canonical domain against stored domains,
// tolerating historical scheme-prefixed rows. Case-insensitive.
func (r *InMemoryRepository) ResolveDomain(_ context.Context, domain string) (*Origin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	variants := domainVariants(strings.ToLower(domain))
	for _, o := range r.origins {
		if o.DeletedAt != nil {
			continue
		}
		stored := strings.ToLower(o.Domain)
		for _, v := range variants {
			if stored == v {
				cp := *o
				return &cp, nil
			}
		}
	}
	return nil, ErrNotFound
}

// GetByID retrieves a live origin by id.
func (r *InMemoryRepository) GetByID(_ context.Context, id int64) (*Origin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.origins[id]
	if !ok || o.DeletedAt != nil {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// List returns all live origins ordered by name.
func (r *InMemoryRepository) List(_ context.Context) ([]*Origin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Origin, 0, len(r.origins))
	for _, o := range r.origins {
		if o.DeletedAt != nil {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SoftDelete marks an origin deleted, refusing while scenes reference it.
func (r *InMemoryRepository) SoftDelete(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.origins[id]
	if !ok || o.DeletedAt != nil {
		return false, nil
	}
	if r.sceneCounter != nil && r.sceneCounter(id) > 0 {
		return false, ErrHasScenes
	}
	now := time.Now()
	o.DeletedAt = &now
	o.UpdatedAt = now
	return true, nil
}
