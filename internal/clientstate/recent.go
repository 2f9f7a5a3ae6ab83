package clientstate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MaxRecentlyViewed caps the recently viewed list.
const MaxRecentlyViewed = 10

type recentState struct {
	Handles []string `json:"handles"`
}

// RecentlyViewed tracks product handles, most recent first.
type RecentlyViewed struct {
	mu      sync.Mutex
	storage Storage
	key     string
	handles []string
}

func loadRecentlyViewed(ctx context.Context, storage Storage, browserID string) (*RecentlyViewed, error) {
	r := &RecentlyViewed{storage: storage, key: namespacedKey(browserID, RecentlyViewedKey)}
	raw, err := storage.Load(ctx, r.key)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		var p persisted[recentState]
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("clientstate: decode recently viewed: %w", err)
		}
		r.handles = p.State.Handles
	}
	return r, nil
}

// Add moves handle to the front.
func (r *RecentlyViewed) Add(ctx context.Context, handle string) error {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]string, 0, MaxRecentlyViewed)
	next = append(next, handle)
	for _, h := range r.handles {
		if h != handle && len(next) < MaxRecentlyViewed {
			next = append(next, h)
		}
	}
	r.handles = next
	raw, err := json.Marshal(persisted[recentState]{State: recentState{Handles: r.handles}})
	if err != nil {
		return fmt.Errorf("clientstate: encode recently viewed: %w", err)
	}
	return r.storage.Save(ctx, r.key, raw)
}

// Handles returns the list, most recent first.
func (r *RecentlyViewed) Handles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.handles...)
}
