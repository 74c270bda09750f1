// Package registry maintains the authoritative list of configured providers
// together with their live statistics and circuit breakers. The failover
// router only reads eligibility from here and reports attempt outcomes back.
package registry
