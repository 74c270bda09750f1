package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity. The
// router surfaces it immediately rather than blocking the caller.
var ErrQueueFull = errors.New("queue full")

// Entry is one parked request. The queue knows nothing about routing; the
// router packs its redispatch and expiry behavior into the two closures,
// which both deliver the terminal outcome to the original caller.
type Entry struct {
	Deadline time.Time
	Run      func(ctx context.Context)
	Expire   func()
}

// Queue holds requests that could not be dispatched because every eligible
// provider was exhausted, and retries them oldest-first as providers
// recover. It is a bounded FIFO; capacity pressure fails fast.
type Queue struct {
	mutex         sync.Mutex
	entries       []*Entry
	maxDepth      int
	retryInterval time.Duration
	ready         func() bool
	logger        *slog.Logger
}

// New creates a queue. ready reports whether any provider can currently
// accept traffic; it gates each retry pass.
func New(maxDepth int, retryInterval time.Duration, ready func() bool, logger *slog.Logger) *Queue {
	return &Queue{
		maxDepth:      maxDepth,
		retryInterval: retryInterval,
		ready:         ready,
		logger:        logger,
	}
}

// Enqueue parks an entry, failing with ErrQueueFull at capacity.
func (q *Queue) Enqueue(entry *Entry) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.entries) >= q.maxDepth {
		return ErrQueueFull
	}

	q.entries = append(q.entries, entry)
	return nil
}

// Depth returns the number of parked entries.
func (q *Queue) Depth() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.entries)
}

// Start launches the background retry loop. It stops when ctx is done;
// entries still parked at shutdown are expired so no caller is left
// waiting.
func (q *Queue) Start(ctx context.Context) {
	go q.run(ctx)
}

func (q *Queue) run(ctx context.Context) {
	q.logger.Info("Request queue started",
		slog.Int("max_depth", q.maxDepth),
		slog.Duration("retry_interval", q.retryInterval))

	ticker := time.NewTicker(q.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.expireAll()
			q.logger.Info("Request queue stopped")
			return

		case <-ticker.C:
			q.expirePast(time.Now())
			q.redispatch(ctx)
		}
	}
}

// expirePast drops entries whose deadline has passed and reports the
// timeout to their callers. Expired entries are never silently discarded.
func (q *Queue) expirePast(now time.Time) {
	q.mutex.Lock()
	var expired []*Entry
	remaining := q.entries[:0]
	for _, e := range q.entries {
		if !e.Deadline.IsZero() && now.After(e.Deadline) {
			expired = append(expired, e)
			continue
		}
		remaining = append(remaining, e)
	}
	q.entries = remaining
	q.mutex.Unlock()

	for _, e := range expired {
		q.logger.Warn("Queued request expired before a provider recovered")
		e.Expire()
	}
}

func (q *Queue) expireAll() {
	q.mutex.Lock()
	expired := q.entries
	q.entries = nil
	q.mutex.Unlock()

	for _, e := range expired {
		e.Expire()
	}
}

// redispatch drains the queue oldest-first while capacity is available.
func (q *Queue) redispatch(ctx context.Context) {
	for q.ready() {
		entry := q.pop()
		if entry == nil {
			return
		}
		entry.Run(ctx)
	}
}

func (q *Queue) pop() *Entry {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.entries) == 0 {
		return nil
	}

	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry
}
