package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/failover-router/internal/circuitbreaker"
)

var _ = Describe("Registry", func() {
	var registry *circuitbreaker.Registry

	settings := func(threshold int) circuitbreaker.Settings {
		return circuitbreaker.Settings{
			FailureThreshold: threshold,
			Cooldown:         30 * time.Second,
			MaxBackoff:       5 * time.Minute,
		}
	}

	BeforeEach(func() {
		registry = circuitbreaker.NewRegistry(nil)
	})

	Describe("Add and Get", func() {
		It("should register a breaker per provider name", func() {
			cb := registry.Add("claude", settings(5))
			Expect(cb).NotTo(BeNil())

			got, ok := registry.Get("claude")
			Expect(ok).To(BeTrue())
			Expect(got).To(BeIdenticalTo(cb))
		})

		It("should return false for unknown names", func() {
			_, ok := registry.Get("nope")
			Expect(ok).To(BeFalse())
		})

		It("should honor per-provider thresholds", func() {
			cb := registry.Add("flaky", settings(2))
			cb.RecordFailure()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})
	})

	Describe("state change notifications", func() {
		It("should report transitions with the provider name", func() {
			type change struct {
				name     string
				from, to circuitbreaker.State
			}

			var (
				mutex   sync.Mutex
				changes []change
			)

			registry = circuitbreaker.NewRegistry(func(name string, from, to circuitbreaker.State) {
				mutex.Lock()
				defer mutex.Unlock()
				changes = append(changes, change{name, from, to})
			})

			cb := registry.Add("claude", settings(2))
			cb.RecordFailure()
			cb.RecordFailure()

			mutex.Lock()
			defer mutex.Unlock()
			Expect(changes).To(HaveLen(1))
			Expect(changes[0].name).To(Equal("claude"))
			Expect(changes[0].from).To(Equal(circuitbreaker.StateClosed))
			Expect(changes[0].to).To(Equal(circuitbreaker.StateOpen))
		})
	})

	Describe("Stats", func() {
		It("should return the state of every breaker", func() {
			registry.Add("claude", settings(5))
			cb := registry.Add("gpt", settings(2))
			cb.RecordFailure()
			cb.RecordFailure()

			stats := registry.Stats()
			Expect(stats).To(HaveLen(2))
			Expect(stats["claude"]).To(Equal(circuitbreaker.StateClosed))
			Expect(stats["gpt"]).To(Equal(circuitbreaker.StateOpen))
		})
	})

	Describe("Reset", func() {
		It("should clear all breakers", func() {
			registry.Add("claude", settings(5))
			registry.Add("gpt", settings(5))
			Expect(registry.Stats()).To(HaveLen(2))

			registry.Reset()
			Expect(registry.Stats()).To(BeEmpty())
		})
	})

	Describe("Concurrent access", func() {
		It("should handle concurrent operations on the same breaker", func() {
			const goroutines = 50

			cb := registry.Add("claude", settings(5))

			var wg sync.WaitGroup
			wg.Add(goroutines * 2)

			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					cb.RecordFailure()
				}()
			}
			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					cb.RecordSuccess()
				}()
			}

			wg.Wait()

			Expect(cb.State()).To(BeElementOf(
				circuitbreaker.StateClosed,
				circuitbreaker.StateOpen,
				circuitbreaker.StateHalfOpen,
			))
		})
	})
})
