package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angeloszaimis/failover-router/config"
	"github.com/angeloszaimis/failover-router/internal/circuitbreaker"
	"github.com/angeloszaimis/failover-router/internal/handler"
	"github.com/angeloszaimis/failover-router/internal/healthcheck"
	"github.com/angeloszaimis/failover-router/internal/httpserver"
	"github.com/angeloszaimis/failover-router/internal/metrics"
	"github.com/angeloszaimis/failover-router/internal/provider"
	"github.com/angeloszaimis/failover-router/internal/queue"
	"github.com/angeloszaimis/failover-router/internal/registry"
	"github.com/angeloszaimis/failover-router/internal/router"
	"github.com/angeloszaimis/failover-router/pkg/logger"
)

const metricsBufferSize = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(metricsBufferSize, log)
	collector.Start(ctx)

	breakers := circuitbreaker.NewRegistry(func(name string, from, to circuitbreaker.State) {
		collector.Publish(metrics.Event{
			Type:         metrics.EventBreakerStateChanged,
			Provider:     name,
			BreakerState: to.String(),
		})
		log.Info("Circuit breaker state changed",
			slog.String("provider", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	})

	reg := registry.New(breakers, log)
	if err := registerProviders(reg, cfg, log); err != nil {
		log.Error("Failed to register providers", slog.Any("err", err))
		os.Exit(1)
	}

	retryQueue, queueWait, err := initializeQueue(ctx, cfg, reg, log)
	if err != nil {
		log.Error("Failed to initialize retry queue", slog.Any("err", err))
		os.Exit(1)
	}

	if err := startHealthChecks(ctx, cfg, reg, log); err != nil {
		log.Error("Failed to start health checks", slog.Any("err", err))
		os.Exit(1)
	}

	failoverRouter := router.New(reg, retryQueue, collector, queueWait, log)
	routeHandler := handler.NewRouteHandler(log, failoverRouter, reg)

	mux := setupRouter(routeHandler, reg, collector)

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Failover router listening",
		slog.String("address", cfg.Server.Address),
		slog.Int("providers", len(reg.All())))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting failover router", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func registerProviders(reg *registry.Registry, cfg *config.Config, log *slog.Logger) error {
	for _, pc := range cfg.Providers {
		settings, err := providerSettings(pc)
		if err != nil {
			return err
		}

		client, err := buildClient(pc)
		if err != nil {
			return err
		}

		breakerSettings, err := breakerSettings(pc.Breaker)
		if err != nil {
			return err
		}

		if err := reg.Register(provider.New(settings), client, breakerSettings); err != nil {
			return err
		}

		log.Info("Registered provider",
			slog.String("name", pc.Name),
			slog.String("kind", pc.Kind),
			slog.String("driver", pc.Driver),
			slog.Int("priority", pc.Priority))
	}

	return nil
}

func providerSettings(pc config.ProviderConfig) (provider.Settings, error) {
	timeout, err := time.ParseDuration(pc.Timeout)
	if err != nil {
		return provider.Settings{}, err
	}

	kind := provider.KindCloud
	if pc.Kind == config.KindLocal {
		kind = provider.KindLocal
	}

	return provider.Settings{
		Name:         pc.Name,
		Kind:         kind,
		Endpoint:     pc.Endpoint,
		Priority:     pc.Priority,
		CostPerCall:  pc.CostPerCall,
		Capabilities: pc.Capabilities,
		Timeout:      timeout,
	}, nil
}

func buildClient(pc config.ProviderConfig) (provider.Client, error) {
	apiKey := ""
	if pc.APIKeyEnv != "" {
		apiKey = os.Getenv(pc.APIKeyEnv)
	}

	switch pc.Driver {
	case config.DriverAnthropic:
		return provider.NewAnthropicClient(pc.Endpoint, apiKey, pc.Model), nil
	default:
		// Local model servers (ollama, vllm) speak the OpenAI API.
		return provider.NewOpenAIClient(pc.Endpoint, apiKey, pc.Model), nil
	}
}

func breakerSettings(bc config.BreakerConfig) (circuitbreaker.Settings, error) {
	cooldown, err := time.ParseDuration(bc.Cooldown)
	if err != nil {
		return circuitbreaker.Settings{}, err
	}

	maxBackoff, err := time.ParseDuration(bc.MaxBackoff)
	if err != nil {
		return circuitbreaker.Settings{}, err
	}

	return circuitbreaker.Settings{
		FailureThreshold: bc.FailureThreshold,
		Cooldown:         cooldown,
		MaxBackoff:       maxBackoff,
	}, nil
}

func initializeQueue(ctx context.Context, cfg *config.Config, reg *registry.Registry, log *slog.Logger) (*queue.Queue, time.Duration, error) {
	retryInterval, err := time.ParseDuration(cfg.Queue.RetryInterval)
	if err != nil {
		return nil, 0, err
	}

	maxWait, err := time.ParseDuration(cfg.Queue.MaxWait)
	if err != nil {
		return nil, 0, err
	}

	ready := func() bool {
		return len(reg.Eligible("")) > 0
	}

	q := queue.New(cfg.Queue.MaxDepth, retryInterval, ready, log)
	q.Start(ctx)

	return q, maxWait, nil
}

func startHealthChecks(ctx context.Context, cfg *config.Config, reg *registry.Registry, log *slog.Logger) error {
	interval, err := time.ParseDuration(cfg.HealthCheck.Interval)
	if err != nil {
		return err
	}

	for _, p := range reg.All() {
		go healthcheck.HealthCheck(ctx, reg, p.Name(), interval, log)
	}

	return nil
}
