package router

import "errors"

// ErrAllProvidersUnavailable means every provider in the chain failed or
// none were eligible, and queuing was disabled.
var ErrAllProvidersUnavailable = errors.New("all providers unavailable")

// ErrDeadlineExceeded means the caller's total deadline passed mid-cascade
// or while waiting in the queue. The result still carries the partial
// attempt trace.
var ErrDeadlineExceeded = errors.New("deadline exceeded")
