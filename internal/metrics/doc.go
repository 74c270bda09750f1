// Package metrics provides real-time metrics collection for the failover
// router.
//
// It uses a channel-based event pipeline to asynchronously collect metrics
// about:
//   - Attempt, success, and failure counts per provider
//   - Latency percentiles per provider (P50, P95, P99)
//   - Circuit breaker state per provider
//   - Queue activity (queued, dequeued, expired requests)
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the routing path. Publish uses non-blocking channel semantics, so
// events are dropped rather than degrading request handling under load.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	// Emit events during routing
//	collector.Publish(metrics.Event{
//		Type:     metrics.EventProviderSucceeded,
//		Provider: "claude",
//		Duration: 150 * time.Millisecond,
//	})
//
//	// Get metrics snapshot
//	snapshot := collector.Snapshot()
//
// The snapshot is also served as JSON by Collector.Handler. Shutdown drains
// the event channel so in-flight events are not lost.
package metrics
