// Package circuitbreaker implements the circuit breaker pattern for
// provider failover.
//
// A circuit breaker prevents cascading failures by temporarily blocking
// requests to failing providers. It has three states:
//
//   - CLOSED: Normal operation, requests pass through
//   - OPEN: Provider failing, requests blocked until a cooldown elapses
//   - HALF-OPEN: Exactly one trial request probes for recovery
//
// Transitions are pull-based: OPEN moves to HALF-OPEN on the first Allow
// call after the cooldown, so there is no background timer to race against
// and tests can drive transitions with an injected clock. Repeated trial
// failures double the cooldown up to Settings.MaxBackoff.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(nil)
//	cb := registry.Add("claude", circuitbreaker.Settings{
//		FailureThreshold: 3,
//		Cooldown:         30 * time.Second,
//		MaxBackoff:       5 * time.Minute,
//	})
//	if cb.Allow() {
//	    // Call the provider...
//	    if err != nil {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess()
//	    }
//	}
package circuitbreaker
