package circuitbreaker_test

import (
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/failover-router/internal/circuitbreaker"
)

func TestCircuitBreaker(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "CircuitBreaker Suite")
}

// fakeClock lets specs advance time without sleeping.
type fakeClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

var _ = Describe("CircuitBreaker", func() {
	var (
		clock *fakeClock
		cb    *circuitbreaker.CircuitBreaker
	)

	newBreaker := func(threshold int, cooldown, maxBackoff time.Duration) *circuitbreaker.CircuitBreaker {
		return circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			FailureThreshold: threshold,
			Cooldown:         cooldown,
			MaxBackoff:       maxBackoff,
			Clock:            clock.Now,
		})
	}

	BeforeEach(func() {
		clock = newFakeClock()
		cb = newBreaker(3, 10*time.Second, time.Minute)
	})

	Describe("NewCircuitBreaker", func() {
		It("should start in closed state", func() {
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Allow()).To(BeTrue())
		})
	})

	Context("when in CLOSED state", func() {
		It("should remain closed after failures below threshold", func() {
			cb.RecordFailure()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should open after reaching the failure threshold", func() {
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should not open when successes break the failure run", func() {
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordSuccess()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Context("when in OPEN state", func() {
		BeforeEach(func() {
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should block requests before the cooldown elapses", func() {
			clock.Advance(5 * time.Second)
			Expect(cb.Allow()).To(BeFalse())
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should admit exactly one trial after the cooldown", func() {
			clock.Advance(11 * time.Second)
			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
			Expect(cb.Allow()).To(BeFalse())
		})
	})

	Context("when in HALF-OPEN state", func() {
		BeforeEach(func() {
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordFailure()
			clock.Advance(11 * time.Second)
			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
		})

		It("should close on trial success", func() {
			cb.RecordSuccess()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Allow()).To(BeTrue())
		})

		It("should reopen on trial failure", func() {
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(cb.Allow()).To(BeFalse())
		})

		It("should admit another trial after ReleaseTrial", func() {
			cb.ReleaseTrial()
			Expect(cb.Allow()).To(BeTrue())
		})
	})

	Describe("cooldown backoff", func() {
		It("should never shrink the cooldown across reopenings", func() {
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordFailure()

			previous := cb.Cooldown()
			for i := 0; i < 5; i++ {
				clock.Advance(cb.Cooldown())
				Expect(cb.Allow()).To(BeTrue())
				cb.RecordFailure()

				current := cb.Cooldown()
				Expect(current).To(BeNumerically(">=", previous))
				previous = current
			}
		})

		It("should cap the cooldown at MaxBackoff", func() {
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordFailure()

			for i := 0; i < 10; i++ {
				clock.Advance(cb.Cooldown())
				Expect(cb.Allow()).To(BeTrue())
				cb.RecordFailure()
			}

			Expect(cb.Cooldown()).To(Equal(time.Minute))
		})

		It("should reset the cooldown after a successful trial", func() {
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordFailure()

			clock.Advance(cb.Cooldown())
			Expect(cb.Allow()).To(BeTrue())
			cb.RecordFailure()
			Expect(cb.Cooldown()).To(Equal(20 * time.Second))

			clock.Advance(cb.Cooldown())
			Expect(cb.Allow()).To(BeTrue())
			cb.RecordSuccess()
			Expect(cb.Cooldown()).To(Equal(10 * time.Second))
		})
	})

	Describe("concurrent trial admission", func() {
		It("should admit exactly one of many concurrent callers", func() {
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordFailure()
			clock.Advance(11 * time.Second)

			const goroutines = 50
			var wg sync.WaitGroup
			admitted := make(chan bool, goroutines)

			wg.Add(goroutines)
			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					admitted <- cb.Allow()
				}()
			}
			wg.Wait()
			close(admitted)

			count := 0
			for ok := range admitted {
				if ok {
					count++
				}
			}
			Expect(count).To(Equal(1))
		})
	})

	Describe("CanAttempt", func() {
		It("should not consume the trial slot", func() {
			cb.RecordFailure()
			cb.RecordFailure()
			cb.RecordFailure()
			clock.Advance(11 * time.Second)

			Expect(cb.CanAttempt()).To(BeTrue())
			Expect(cb.CanAttempt()).To(BeTrue())
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))

			Expect(cb.Allow()).To(BeTrue())
			Expect(cb.CanAttempt()).To(BeFalse())
		})
	})

	Describe("State.String", func() {
		It("should return correct string representation", func() {
			Expect(circuitbreaker.StateClosed.String()).To(Equal("CLOSED"))
			Expect(circuitbreaker.StateOpen.String()).To(Equal("OPEN"))
			Expect(circuitbreaker.StateHalfOpen.String()).To(Equal("HALF-OPEN"))
		})
	})
})
