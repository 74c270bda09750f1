package router

import (
	"sync"
	"time"

	"github.com/angeloszaimis/failover-router/internal/provider"
)

// Outcome classifies the terminal state of a routing request.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeQueued
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// Request is one inference routing request. It is immutable once submitted.
type Request struct {
	ID         string
	Prompt     string
	Capability string
	MaxTokens  int

	// Timeout overrides the per-attempt timeout of each provider; zero
	// means each provider's configured timeout applies.
	Timeout time.Duration

	// Deadline bounds the total time spent on this request across all
	// fallback attempts and any queue wait; zero means no bound.
	Deadline time.Duration

	// Provider forces a single named provider; Chain supplies an explicit
	// fallback chain. Either way, breaker-blocked providers are skipped,
	// never force-attempted.
	Provider string
	Chain    []string

	// DisableQueue turns queue-on-exhaustion into an immediate failure.
	DisableQueue bool
}

// Attempt records one provider call for the result's observability trace.
type Attempt struct {
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency"`
	Error    string        `json:"error,omitempty"`
}

// Result is the terminal (or queued) outcome of a routing request. The
// Attempted trace always carries every provider actually called, so callers
// can debug failures without internal log access.
type Result struct {
	Outcome   Outcome
	Provider  string
	Response  *provider.CompletionResponse
	Latency   time.Duration
	Cost      float64
	Attempted []Attempt
	Err       error

	// Ticket is set when Outcome is OutcomeQueued; its channel yields the
	// terminal Result once the request is redispatched or expires.
	Ticket *Ticket
}

// Ticket is the asynchronous completion handle for a queued request.
type Ticket struct {
	ID         string
	EnqueuedAt time.Time

	once sync.Once
	done chan Result
}

func newTicket(id string) *Ticket {
	return &Ticket{
		ID:         id,
		EnqueuedAt: time.Now(),
		done:       make(chan Result, 1),
	}
}

// Done yields the terminal Result exactly once.
func (t *Ticket) Done() <-chan Result {
	return t.done
}

func (t *Ticket) deliver(result Result) {
	t.once.Do(func() {
		t.done <- result
	})
}
