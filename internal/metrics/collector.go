package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventProviderAttempted   EventType = "provider_attempted"
	EventProviderSucceeded   EventType = "provider_succeeded"
	EventProviderFailed      EventType = "provider_failed"
	EventBreakerStateChanged EventType = "breaker_state_changed"
	EventRequestQueued       EventType = "request_queued"
	EventRequestDequeued     EventType = "request_dequeued"
	EventRequestExpired      EventType = "request_expired"
)

type Event struct {
	Type         EventType
	Timestamp    time.Time
	Provider     string
	RequestID    string
	Duration     time.Duration
	BreakerState string
	Error        string
}

// Collector consumes routing events on a buffered channel and folds them
// into the metrics store without blocking the request path.
type Collector struct {
	eventCh chan Event
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan Event, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Publish offers an event to the collector. Events are dropped rather than
// blocking when the buffer is full.
func (c *Collector) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventProviderAttempted:
		c.metrics.IncrementAttempts(event.Provider)

	case EventProviderSucceeded:
		c.metrics.RecordSuccess(event.Provider, event.Duration)

	case EventProviderFailed:
		c.metrics.RecordFailure(event.Provider)

	case EventBreakerStateChanged:
		c.metrics.UpdateBreakerState(event.Provider, event.BreakerState)

	case EventRequestQueued:
		c.metrics.IncrementQueued()

	case EventRequestDequeued:
		c.metrics.IncrementDequeued()

	case EventRequestExpired:
		c.metrics.IncrementExpired()
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
