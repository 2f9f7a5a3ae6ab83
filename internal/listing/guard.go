package listing

import (
	"errors"
	"sync"
)

// ErrLoadInFlight is returned when a load-more for the same listing is still unresolved.
var ErrLoadInFlight = errors.New("listing: load more already in flight")

// Guard admits one load-more per key at a time.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewGuard constructs an empty guard.
func NewGuard() *Guard {
	return &Guard{inFlight: map[string]struct{}{}}
}

// Acquire claims key. The returned release must be called once the request completes.
func (g *Guard) Acquire(key string) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[key]; busy {
		return nil, ErrLoadInFlight
	}
	g.inFlight[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, key)
			g.mu.Unlock()
		})
	}, nil
}
