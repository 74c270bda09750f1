package provider_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/failover-router/internal/provider"
)

func TestProvider(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Provider Suite")
}

var _ = Describe("Provider", func() {
	newProvider := func(cost float64) *provider.Provider {
		return provider.New(provider.Settings{
			Name:         "claude",
			Kind:         provider.KindCloud,
			Endpoint:     "https://api.anthropic.com",
			Priority:     1,
			CostPerCall:  cost,
			Capabilities: []string{"completion", "embedding"},
			Timeout:      30 * time.Second,
		})
	}

	Describe("EWMA latency", func() {
		It("uses the first sample as the initial average", func() {
			p := newProvider(0)
			p.RecordSuccess(100 * time.Millisecond)
			Expect(p.EWMALatency()).To(Equal(100 * time.Millisecond))
		})

		It("smooths subsequent samples", func() {
			p := newProvider(0)
			p.RecordSuccess(100 * time.Millisecond)
			p.RecordSuccess(200 * time.Millisecond)
			// 0.8*100ms + 0.2*200ms = 120ms
			Expect(p.EWMALatency()).To(BeNumerically("~", 120*time.Millisecond, float64(time.Millisecond)))
		})

		It("reports zero before any success", func() {
			p := newProvider(0)
			p.RecordFailure()
			Expect(p.EWMALatency()).To(BeZero())
		})
	})

	Describe("consecutive counters", func() {
		It("resets the failure run on success", func() {
			p := newProvider(0)
			p.RecordFailure()
			p.RecordFailure()
			Expect(p.ConsecutiveFailures()).To(Equal(2))

			p.RecordSuccess(time.Millisecond)
			Expect(p.ConsecutiveFailures()).To(BeZero())
			Expect(p.ConsecutiveSuccesses()).To(Equal(1))
		})

		It("resets the success run on failure", func() {
			p := newProvider(0)
			p.RecordSuccess(time.Millisecond)
			p.RecordSuccess(time.Millisecond)
			p.RecordFailure()
			Expect(p.ConsecutiveSuccesses()).To(BeZero())
			Expect(p.ConsecutiveFailures()).To(Equal(1))
		})
	})

	Describe("failure rate", func() {
		It("tracks the lifetime ratio", func() {
			p := newProvider(0)
			p.RecordSuccess(time.Millisecond)
			p.RecordSuccess(time.Millisecond)
			p.RecordFailure()
			p.RecordFailure()
			Expect(p.FailureRate()).To(BeNumerically("~", 0.5))
		})

		It("is zero before any attempt", func() {
			Expect(newProvider(0).FailureRate()).To(BeZero())
		})
	})

	Describe("Score", func() {
		It("ranks an untried provider first", func() {
			Expect(newProvider(0.5).Score()).To(BeZero())
		})

		It("penalizes latency", func() {
			fast := newProvider(0)
			fast.RecordSuccess(10 * time.Millisecond)

			slow := newProvider(0)
			slow.RecordSuccess(500 * time.Millisecond)

			Expect(fast.Score()).To(BeNumerically("<", slow.Score()))
		})

		It("penalizes failure rate at equal latency", func() {
			clean := newProvider(0)
			clean.RecordSuccess(100 * time.Millisecond)

			flaky := newProvider(0)
			flaky.RecordSuccess(100 * time.Millisecond)
			flaky.RecordFailure()

			Expect(clean.Score()).To(BeNumerically("<", flaky.Score()))
		})

		It("penalizes cost at equal health", func() {
			cheap := newProvider(0)
			cheap.RecordSuccess(100 * time.Millisecond)

			pricey := newProvider(0.06)
			pricey.RecordSuccess(100 * time.Millisecond)

			Expect(cheap.Score()).To(BeNumerically("<", pricey.Score()))
		})
	})

	Describe("capabilities", func() {
		It("matches declared capabilities", func() {
			p := newProvider(0)
			Expect(p.HasCapability("completion")).To(BeTrue())
			Expect(p.HasCapability("vision")).To(BeFalse())
		})

		It("matches everything on the empty tag", func() {
			Expect(newProvider(0).HasCapability("")).To(BeTrue())
		})
	})
})
