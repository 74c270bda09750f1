package circuitbreaker

import (
	"sync"
)

// StateChangeFunc is notified whenever any breaker in the registry changes
// state. It must not call back into the registry or the breaker.
type StateChangeFunc func(name string, from, to State)

// Registry holds one breaker per provider name. Providers carry their own
// thresholds, so breakers are added explicitly at startup rather than
// created lazily with shared settings.
type Registry struct {
	mutex         sync.RWMutex
	breakers      map[string]*CircuitBreaker
	onStateChange StateChangeFunc
}

func NewRegistry(onStateChange StateChangeFunc) *Registry {
	return &Registry{
		breakers:      make(map[string]*CircuitBreaker),
		onStateChange: onStateChange,
	}
}

// Add creates and registers a breaker for the given provider name. Adding
// the same name twice replaces the previous breaker.
func (r *Registry) Add(name string, settings Settings) *CircuitBreaker {
	cb := NewCircuitBreaker(settings)

	if r.onStateChange != nil {
		notify := r.onStateChange
		cb.OnStateChange(func(from, to State) {
			notify(name, from, to)
		})
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers[name] = cb
	return cb
}

// Get returns the breaker for a provider name, or false if none exists.
func (r *Registry) Get(name string) (*CircuitBreaker, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// Reset removes all breakers.
func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers = make(map[string]*CircuitBreaker)
}

// Stats returns the current state of every breaker, keyed by provider name.
func (r *Registry) Stats() map[string]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]State, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.State()
	}
	return stats
}
