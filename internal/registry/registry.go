package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/angeloszaimis/failover-router/internal/circuitbreaker"
	"github.com/angeloszaimis/failover-router/internal/provider"
)

// ErrUnknownProvider is returned when a request references a provider name
// that was never registered. It fails that request only.
var ErrUnknownProvider = errors.New("unknown provider")

// ConfigurationError reports an invalid provider registration. It is fatal
// at startup, never per-request.
type ConfigurationError struct {
	Name   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("provider %q: %s", e.Name, e.Reason)
}

type entry struct {
	provider *provider.Provider
	client   provider.Client
}

// Registry is the authoritative list of configured providers, their live
// statistics, and their circuit breakers. Live traffic and health probes
// report outcomes through the same RecordSuccess/RecordFailure paths, so
// breaker logic has one code path regardless of trigger source.
type Registry struct {
	mutex    sync.RWMutex
	entries  map[string]*entry
	order    []string
	breakers *circuitbreaker.Registry
	logger   *slog.Logger
}

func New(breakers *circuitbreaker.Registry, logger *slog.Logger) *Registry {
	return &Registry{
		entries:  make(map[string]*entry),
		breakers: breakers,
		logger:   logger,
	}
}

// Register adds a provider, its client, and its breaker settings. Duplicate
// names and missing fields fail with a ConfigurationError.
func (r *Registry) Register(p *provider.Provider, client provider.Client, settings circuitbreaker.Settings) error {
	if p == nil || p.Name() == "" {
		return &ConfigurationError{Reason: "name is required"}
	}
	if client == nil {
		return &ConfigurationError{Name: p.Name(), Reason: "client is required"}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.entries[p.Name()]; exists {
		return &ConfigurationError{Name: p.Name(), Reason: "duplicate provider name"}
	}

	r.entries[p.Name()] = &entry{provider: p, client: client}
	r.order = append(r.order, p.Name())
	r.breakers.Add(p.Name(), settings)

	r.logger.Info("Provider registered",
		slog.String("provider", p.Name()),
		slog.String("kind", p.Kind().String()),
		slog.Int("priority", p.Priority()))

	return nil
}

// Lookup returns the provider for a name, or ErrUnknownProvider.
func (r *Registry) Lookup(name string) (*provider.Provider, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return e.provider, nil
}

// Client returns the call client for a name, or ErrUnknownProvider.
func (r *Registry) Client(name string) (provider.Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return e.client, nil
}

// Breaker returns the circuit breaker for a registered provider, or nil.
func (r *Registry) Breaker(name string) *circuitbreaker.CircuitBreaker {
	cb, ok := r.breakers.Get(name)
	if !ok {
		return nil
	}
	return cb
}

// All returns every registered provider in registration order.
func (r *Registry) All() []*provider.Provider {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	providers := make([]*provider.Provider, 0, len(r.order))
	for _, name := range r.order {
		providers = append(providers, r.entries[name].provider)
	}
	return providers
}

// RecordSuccess updates the provider's rolling statistics and closes its
// breaker. Both live traffic and health probes report through here.
func (r *Registry) RecordSuccess(name string, latency time.Duration) {
	p, err := r.Lookup(name)
	if err != nil {
		return
	}

	p.RecordSuccess(latency)
	if cb := r.Breaker(name); cb != nil {
		cb.RecordSuccess()
	}
}

// RecordFailure updates the provider's rolling statistics and feeds the
// breaker's failure-threshold check.
func (r *Registry) RecordFailure(name string, reason error) {
	p, err := r.Lookup(name)
	if err != nil {
		return
	}

	p.RecordFailure()
	if cb := r.Breaker(name); cb != nil {
		cb.RecordFailure()
	}

	r.logger.Debug("Provider failure recorded",
		slog.String("provider", name),
		slog.Int("consecutive_failures", p.ConsecutiveFailures()),
		slog.Any("reason", reason))
}

// Acquire reports whether an attempt on the named provider may proceed
// right now, taking the HALF-OPEN trial slot when applicable.
func (r *Registry) Acquire(name string) bool {
	cb := r.Breaker(name)
	if cb == nil {
		return false
	}
	return cb.Allow()
}

// Release gives back a trial slot taken by Acquire without recording an
// outcome.
func (r *Registry) Release(name string) {
	if cb := r.Breaker(name); cb != nil {
		cb.ReleaseTrial()
	}
}

// Eligible returns the providers whose breakers currently admit attempts
// and that serve the given capability, ordered by priority tier and then by
// composite score (latency, failure rate, cost) within a tier.
func (r *Registry) Eligible(capability string) []*provider.Provider {
	r.mutex.RLock()
	candidates := make([]*provider.Provider, 0, len(r.order))
	for _, name := range r.order {
		candidates = append(candidates, r.entries[name].provider)
	}
	r.mutex.RUnlock()

	eligible := make([]*provider.Provider, 0, len(candidates))
	for _, p := range candidates {
		if !p.HasCapability(capability) {
			continue
		}
		cb := r.Breaker(p.Name())
		if cb == nil || !cb.CanAttempt() {
			continue
		}
		eligible = append(eligible, p)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority() != eligible[j].Priority() {
			return eligible[i].Priority() < eligible[j].Priority()
		}
		return eligible[i].Score() < eligible[j].Score()
	})

	return eligible
}
