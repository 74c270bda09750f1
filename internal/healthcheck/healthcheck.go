package healthcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/angeloszaimis/failover-router/internal/circuitbreaker"
	"github.com/angeloszaimis/failover-router/internal/provider"
	"github.com/angeloszaimis/failover-router/internal/registry"
)

const probeTimeout = 5 * time.Second

// HealthCheck periodically probes one provider with a synthetic request and
// folds the outcome into the registry through the same record paths used by
// live traffic. Probes against an open breaker run only when the breaker
// admits the recovery trial, so the checker drives HALF-OPEN transitions
// without waiting for user traffic and without defeating the breaker.
func HealthCheck(
	ctx context.Context,
	reg *registry.Registry,
	name string,
	interval time.Duration,
	logger *slog.Logger,
) {
	client, err := reg.Client(name)
	if err != nil {
		logger.Error("Health check not started",
			slog.String("provider", name),
			slog.Any("err", err))
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	wasHealthy := true

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health check stopped",
				slog.String("provider", name))
			return

		case <-ticker.C:
			cb := reg.Breaker(name)
			if cb == nil {
				continue
			}

			if cb.State() != circuitbreaker.StateClosed && !cb.Allow() {
				// Cooldown still running, or another trial is in flight.
				continue
			}

			healthy := probe(ctx, reg, name, client)

			if healthy != wasHealthy {
				if healthy {
					logger.Info("Provider is back up",
						slog.String("provider", name))
				} else {
					logger.Warn("Provider is down",
						slog.String("provider", name))
				}
				wasHealthy = healthy
			}
		}
	}
}

func probe(ctx context.Context, reg *registry.Registry, name string, client provider.Client) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	if err := client.HealthCheck(probeCtx); err != nil {
		reg.RecordFailure(name, err)
		return false
	}

	reg.RecordSuccess(name, time.Since(start))
	return true
}
