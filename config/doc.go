// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including server settings, provider definitions, circuit breaker thresholds,
// health check intervals, and retry queue limits.
package config
