package provider

import (
	"sync"
	"time"
)

// Kind distinguishes the two classes of inference backends the router can
// dispatch to.
type Kind int

const (
	KindCloud Kind = iota // Hosted API (OpenAI, Anthropic)
	KindLocal             // Self-hosted model server (ollama, vllm)
)

func (k Kind) String() string {
	switch k {
	case KindCloud:
		return "cloud"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Settings is the immutable identity of a provider, built once from
// configuration at startup.
type Settings struct {
	Name         string
	Kind         Kind
	Endpoint     string
	Priority     int // lower is preferred
	CostPerCall  float64
	Capabilities []string
	Timeout      time.Duration
}

// Provider represents one inference backend together with its live health
// statistics. Identity fields are immutable; the statistics are shared by
// every concurrent request for this provider and guarded by a mutex scoped
// to this provider alone.
type Provider struct {
	settings Settings

	mutex                sync.Mutex
	ewmaLatency          time.Duration
	hasEWMA              bool
	consecutiveFailures  int
	consecutiveSuccesses int
	totalAttempts        int64
	totalFailures        int64
	lastFailure          time.Time
	lastSuccess          time.Time
}

const ewmaAlpha = 0.2

// New creates a Provider from its settings. Statistics start empty.
func New(settings Settings) *Provider {
	return &Provider{settings: settings}
}

// Name returns the provider's unique name.
func (p *Provider) Name() string {
	return p.settings.Name
}

// Kind returns whether the provider is a cloud API or a local server.
func (p *Provider) Kind() Kind {
	return p.settings.Kind
}

// Endpoint returns the configured endpoint reference.
func (p *Provider) Endpoint() string {
	return p.settings.Endpoint
}

// Priority returns the configured priority tier. Lower is preferred.
func (p *Provider) Priority() int {
	return p.settings.Priority
}

// CostPerCall returns the configured base cost per call.
func (p *Provider) CostPerCall() float64 {
	return p.settings.CostPerCall
}

// Timeout returns the per-attempt timeout configured for this provider.
func (p *Provider) Timeout() time.Duration {
	return p.settings.Timeout
}

// Capabilities returns the provider's capability tags.
func (p *Provider) Capabilities() []string {
	return p.settings.Capabilities
}

// HasCapability reports whether the provider serves the given capability
// tag. An empty tag matches every provider.
func (p *Provider) HasCapability(capability string) bool {
	if capability == "" {
		return true
	}
	for _, c := range p.settings.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// RecordSuccess folds a successful attempt into the statistics: the EWMA
// latency absorbs the new sample and the consecutive failure count resets.
func (p *Provider) RecordSuccess(latency time.Duration) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.totalAttempts++
	p.consecutiveFailures = 0
	p.consecutiveSuccesses++
	p.lastSuccess = time.Now()

	if !p.hasEWMA {
		p.ewmaLatency = latency
		p.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	p.ewmaLatency = time.Duration((1-ewmaAlpha)*float64(p.ewmaLatency) + ewmaAlpha*float64(latency))
}

// RecordFailure folds a failed attempt into the statistics and resets the
// consecutive success count.
func (p *Provider) RecordFailure() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.totalAttempts++
	p.totalFailures++
	p.consecutiveFailures++
	p.consecutiveSuccesses = 0
	p.lastFailure = time.Now()
}

// EWMALatency returns the exponentially weighted moving average latency.
// Returns 0 if no successful attempts have been recorded yet.
func (p *Provider) EWMALatency() time.Duration {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.hasEWMA {
		return 0
	}
	return p.ewmaLatency
}

// ConsecutiveFailures returns the current run of failed attempts.
func (p *Provider) ConsecutiveFailures() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.consecutiveFailures
}

// ConsecutiveSuccesses returns the current run of successful attempts.
func (p *Provider) ConsecutiveSuccesses() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.consecutiveSuccesses
}

// FailureRate returns the lifetime ratio of failed attempts, or 0 before
// any attempt has been recorded.
func (p *Provider) FailureRate() float64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.totalAttempts == 0 {
		return 0
	}
	return float64(p.totalFailures) / float64(p.totalAttempts)
}

// LastSuccess returns the timestamp of the most recent successful attempt.
func (p *Provider) LastSuccess() time.Time {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.lastSuccess
}

// LastFailure returns the timestamp of the most recent failed attempt.
func (p *Provider) LastFailure() time.Time {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.lastFailure
}

// Score is the composite used to break priority ties when ordering
// eligible providers: observed latency scaled up by failure rate and cost.
// Lower is better. A provider with no samples yet scores lowest so it gets
// tried first.
func (p *Provider) Score() float64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.hasEWMA {
		return 0
	}

	var rate float64
	if p.totalAttempts > 0 {
		rate = float64(p.totalFailures) / float64(p.totalAttempts)
	}

	latencyMs := float64(p.ewmaLatency.Milliseconds()) + 1
	return latencyMs * (1 + rate) * (1 + p.settings.CostPerCall)
}
