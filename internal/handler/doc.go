// Package handler implements the HTTP request handlers for the failover
// router. It coordinates request decoding, routing, queue-wait handling,
// and error-to-status mapping.
package handler
