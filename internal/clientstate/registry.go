package clientstate

import (
	"context"
	"sync"
)

const maxSelections = 10000

// Registry hands out state containers per browser namespace. It is constructed once per
// application and injected into handlers.
type Registry struct {
	storage Storage

	mu         sync.Mutex
	selections map[string]*VariantSelection
}

// NewRegistry constructs a registry over storage.
func NewRegistry(storage Storage) *Registry {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &Registry{storage: storage, selections: map[string]*VariantSelection{}}
}

// Cart loads the cart for browserID.
func (r *Registry) Cart(ctx context.Context, browserID string) (*Cart, error) {
	return loadCart(ctx, r.storage, browserID)
}

// RecentlyViewed loads the recently viewed list for browserID.
func (r *Registry) RecentlyViewed(ctx context.Context, browserID string) (*RecentlyViewed, error) {
	return loadRecentlyViewed(ctx, r.storage, browserID)
}

// Variant returns the in-memory variant selection for browserID.
func (r *Registry) Variant(browserID string) *VariantSelection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.selections[browserID]; ok {
		return v
	}
	if len(r.selections) >= maxSelections {
		// Selections are ephemeral; shed an arbitrary one rather than grow without bound.
		for id := range r.selections {
			delete(r.selections, id)
			break
		}
	}
	v := &VariantSelection{}
	r.selections[browserID] = v
	return v
}
