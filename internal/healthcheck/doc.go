// Package healthcheck implements periodic synthetic probing of providers.
// Probe outcomes feed the same success/failure record paths as live
// traffic, so circuit breakers recover even when no user requests arrive.
package healthcheck
