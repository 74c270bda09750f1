package metrics

import (
	"sort"
	"sync"
	"time"
)

// keep at most this many latency samples per provider
const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	attempts      map[string]int64
	successes     map[string]int64
	failures      map[string]int64
	latencies     map[string][]time.Duration
	breakerStates map[string]string
	queued        int64
	dequeued      int64
	expired       int64
	startTime     time.Time
}

type Snapshot struct {
	TotalAttempts int64                      `json:"total_attempts"`
	Uptime        time.Duration              `json:"uptime"`
	Providers     map[string]ProviderMetrics `json:"providers"`
	Queue         QueueMetrics               `json:"queue"`
}

type ProviderMetrics struct {
	Attempts     int64         `json:"attempts"`
	Successes    int64         `json:"successes"`
	Failures     int64         `json:"failures"`
	BreakerState string        `json:"breaker_state"`
	AvgLatency   time.Duration `json:"avg_latency"`
	P50Latency   time.Duration `json:"p50_latency"`
	P95Latency   time.Duration `json:"p95_latency"`
	P99Latency   time.Duration `json:"p99_latency"`
}

type QueueMetrics struct {
	Queued   int64 `json:"queued"`
	Dequeued int64 `json:"dequeued"`
	Expired  int64 `json:"expired"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		attempts:      make(map[string]int64),
		successes:     make(map[string]int64),
		failures:      make(map[string]int64),
		latencies:     make(map[string][]time.Duration),
		breakerStates: make(map[string]string),
		startTime:     time.Now(),
	}
}

func (m *Metrics) IncrementAttempts(provider string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.attempts[provider]++
}

func (m *Metrics) RecordSuccess(provider string, latency time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.successes[provider]++
	m.latencies[provider] = append(m.latencies[provider], latency)
	if len(m.latencies[provider]) > maxSamples {
		m.latencies[provider] = m.latencies[provider][1:]
	}
}

func (m *Metrics) RecordFailure(provider string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failures[provider]++
}

func (m *Metrics) UpdateBreakerState(provider string, state string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.breakerStates[provider] = state
}

func (m *Metrics) IncrementQueued() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.queued++
}

func (m *Metrics) IncrementDequeued() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.dequeued++
}

func (m *Metrics) IncrementExpired() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.expired++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:    time.Since(m.startTime),
		Providers: make(map[string]ProviderMetrics),
		Queue: QueueMetrics{
			Queued:   m.queued,
			Dequeued: m.dequeued,
			Expired:  m.expired,
		},
	}

	allProviders := make(map[string]bool)
	for provider := range m.attempts {
		allProviders[provider] = true
	}
	for provider := range m.breakerStates {
		allProviders[provider] = true
	}

	for provider := range allProviders {
		snap.TotalAttempts += m.attempts[provider]

		pm := ProviderMetrics{
			Attempts:     m.attempts[provider],
			Successes:    m.successes[provider],
			Failures:     m.failures[provider],
			BreakerState: m.breakerStates[provider],
		}

		latencies := m.latencies[provider]
		if len(latencies) > 0 {
			sorted := make([]time.Duration, len(latencies))
			copy(sorted, latencies)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			pm.AvgLatency = average(sorted)
			pm.P50Latency = percentile(sorted, 0.50)
			pm.P95Latency = percentile(sorted, 0.95)
			pm.P99Latency = percentile(sorted, 0.99)
		}

		snap.Providers[provider] = pm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
