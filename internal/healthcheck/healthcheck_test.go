package healthcheck_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/failover-router/internal/circuitbreaker"
	"github.com/angeloszaimis/failover-router/internal/healthcheck"
	"github.com/angeloszaimis/failover-router/internal/provider"
	"github.com/angeloszaimis/failover-router/internal/registry"
)

func TestHealthCheck(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "HealthCheck Suite")
}

// probeClient reports scripted health check results.
type probeClient struct {
	mutex   sync.Mutex
	healthy bool
	probes  int
}

func (c *probeClient) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	return &provider.CompletionResponse{Text: "ok"}, nil
}

func (c *probeClient) HealthCheck(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.probes++
	if !c.healthy {
		return errors.New("probe failed")
	}
	return nil
}

func (c *probeClient) SetHealthy(healthy bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.healthy = healthy
}

func (c *probeClient) Probes() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.probes
}

var _ = Describe("HealthCheck", func() {
	var (
		reg    *registry.Registry
		client *probeClient
	)

	register := func(cooldown time.Duration) {
		p := provider.New(provider.Settings{
			Name:         "claude",
			Kind:         provider.KindCloud,
			Endpoint:     "https://api.example.com",
			Priority:     1,
			Capabilities: []string{"completion"},
			Timeout:      time.Second,
		})
		Expect(reg.Register(p, client, circuitbreaker.Settings{
			FailureThreshold: 2,
			Cooldown:         cooldown,
			MaxBackoff:       time.Minute,
		})).To(Succeed())
	}

	BeforeEach(func() {
		client = &probeClient{healthy: true}
		reg = registry.New(circuitbreaker.NewRegistry(nil), slog.Default())
	})

	It("should record successful probes as provider successes", func() {
		register(time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go healthcheck.HealthCheck(ctx, reg, "claude", 20*time.Millisecond, slog.Default())

		Eventually(client.Probes, time.Second).Should(BeNumerically(">=", 2))

		p, err := reg.Lookup("claude")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.ConsecutiveSuccesses()).To(BeNumerically(">=", 2))
	})

	It("should open the breaker after repeated probe failures", func() {
		register(time.Hour)
		client.SetHealthy(false)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go healthcheck.HealthCheck(ctx, reg, "claude", 20*time.Millisecond, slog.Default())

		Eventually(func() circuitbreaker.State {
			return reg.Breaker("claude").State()
		}, time.Second).Should(Equal(circuitbreaker.StateOpen))
	})

	It("should drive recovery once the provider comes back", func() {
		register(50 * time.Millisecond)
		client.SetHealthy(false)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go healthcheck.HealthCheck(ctx, reg, "claude", 20*time.Millisecond, slog.Default())

		Eventually(func() circuitbreaker.State {
			return reg.Breaker("claude").State()
		}, time.Second).Should(Equal(circuitbreaker.StateOpen))

		client.SetHealthy(true)

		Eventually(func() circuitbreaker.State {
			return reg.Breaker("claude").State()
		}, 2*time.Second).Should(Equal(circuitbreaker.StateClosed))
	})

	It("should stop when the context is cancelled", func() {
		register(time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		go healthcheck.HealthCheck(ctx, reg, "claude", 20*time.Millisecond, slog.Default())

		Eventually(client.Probes, time.Second).Should(BeNumerically(">=", 1))
		cancel()

		probes := client.Probes()
		Consistently(client.Probes, 100*time.Millisecond).Should(BeNumerically("<=", probes+1))
	})
})
