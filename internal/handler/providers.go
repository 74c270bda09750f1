package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/angeloszaimis/failover-router/internal/registry"
)

type providerStatus struct {
	Name                 string   `json:"name"`
	Kind                 string   `json:"kind"`
	State                string   `json:"state"`
	Priority             int      `json:"priority"`
	CostPerCall          float64  `json:"cost_per_call"`
	Capabilities         []string `json:"capabilities,omitempty"`
	EWMALatencyMs        int64    `json:"ewma_latency_ms"`
	FailureRate          float64  `json:"failure_rate"`
	ConsecutiveFailures  int      `json:"consecutive_failures"`
	ConsecutiveSuccesses int      `json:"consecutive_successes"`
	LastSuccess          string   `json:"last_success,omitempty"`
	LastFailure          string   `json:"last_failure,omitempty"`
}

// ProvidersHandler returns the health and breaker state of every
// registered provider.
func ProvidersHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		providers := reg.All()
		statuses := make([]providerStatus, 0, len(providers))

		for _, p := range providers {
			status := providerStatus{
				Name:                 p.Name(),
				Kind:                 p.Kind().String(),
				Priority:             p.Priority(),
				CostPerCall:          p.CostPerCall(),
				Capabilities:         p.Capabilities(),
				EWMALatencyMs:        p.EWMALatency().Milliseconds(),
				FailureRate:          p.FailureRate(),
				ConsecutiveFailures:  p.ConsecutiveFailures(),
				ConsecutiveSuccesses: p.ConsecutiveSuccesses(),
			}

			if cb := reg.Breaker(p.Name()); cb != nil {
				status.State = cb.State().String()
			}
			if ts := p.LastSuccess(); !ts.IsZero() {
				status.LastSuccess = ts.Format(time.RFC3339)
			}
			if ts := p.LastFailure(); !ts.IsZero() {
				status.LastFailure = ts.Format(time.RFC3339)
			}

			statuses = append(statuses, status)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statuses)
	}
}
