// Package router implements the failover cascade: given a routing request
// it attempts providers in priority order with bounded timeouts, records
// outcomes against each provider's circuit breaker, and parks the request
// in the retry queue when every provider is exhausted.
package router
