package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/failover-router/internal/metrics"
	"github.com/angeloszaimis/failover-router/internal/provider"
	"github.com/angeloszaimis/failover-router/internal/queue"
	"github.com/angeloszaimis/failover-router/internal/registry"
)

const defaultQueueWait = 30 * time.Second

// FailoverRouter dispatches routing requests across the registered
// providers: it attempts the preferred eligible provider first and cascades
// down the chain on failure, each attempt wrapped with a timeout. When the
// chain is exhausted the request is parked in the retry queue instead of
// failing outright, unless the caller disabled queuing.
type FailoverRouter struct {
	registry  *registry.Registry
	queue     *queue.Queue
	collector *metrics.Collector
	queueWait time.Duration
	logger    *slog.Logger
}

// New creates a FailoverRouter. queue and collector may be nil; queueWait
// bounds how long a request without its own deadline may sit in the queue.
func New(reg *registry.Registry, q *queue.Queue, collector *metrics.Collector, queueWait time.Duration, logger *slog.Logger) *FailoverRouter {
	if queueWait <= 0 {
		queueWait = defaultQueueWait
	}

	return &FailoverRouter{
		registry:  reg,
		queue:     q,
		collector: collector,
		queueWait: queueWait,
		logger:    logger,
	}
}

// Route produces a Result for the request by cascading through the resolved
// provider chain. Per-provider failures are absorbed into breaker state;
// only exhaustion-class errors surface to the caller.
func (fr *FailoverRouter) Route(ctx context.Context, req Request) Result {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	start := time.Now()

	if req.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Deadline)
		defer cancel()
	}

	chain, err := fr.resolveChain(req)
	if err != nil {
		return Result{Outcome: OutcomeFailure, Err: err, Latency: time.Since(start)}
	}

	var attempts []Attempt
	var lastErr error

	for _, p := range chain {
		if ctx.Err() != nil {
			return fr.deadlineExceeded(req, attempts, start)
		}

		name := p.Name()
		if !fr.registry.Acquire(name) {
			fr.logger.Debug("Skipping provider blocked by circuit breaker",
				slog.String("request_id", req.ID),
				slog.String("provider", name))
			continue
		}

		fr.publish(metrics.Event{Type: metrics.EventProviderAttempted, Provider: name, RequestID: req.ID})

		resp, latency, err := fr.attempt(ctx, p, req)
		if err == nil {
			attempts = append(attempts, Attempt{Provider: name, Latency: latency})
			fr.registry.RecordSuccess(name, latency)
			fr.publish(metrics.Event{Type: metrics.EventProviderSucceeded, Provider: name, RequestID: req.ID, Duration: latency})

			fr.logger.Info("Request routed",
				slog.String("request_id", req.ID),
				slog.String("provider", name),
				slog.Int("attempts", len(attempts)),
				slog.Duration("latency", latency))

			return Result{
				Outcome:   OutcomeSuccess,
				Provider:  name,
				Response:  resp,
				Latency:   time.Since(start),
				Cost:      p.CostPerCall(),
				Attempted: attempts,
			}
		}

		attempts = append(attempts, Attempt{Provider: name, Latency: latency, Error: err.Error()})

		if ctx.Err() != nil {
			// The request deadline cut this attempt short. The provider
			// did not necessarily fail, so give back the trial slot
			// instead of counting a failure against it.
			fr.registry.Release(name)
			return fr.deadlineExceeded(req, attempts, start)
		}

		lastErr = err
		fr.registry.RecordFailure(name, err)
		fr.publish(metrics.Event{Type: metrics.EventProviderFailed, Provider: name, RequestID: req.ID, Error: err.Error()})

		fr.logger.Warn("Provider attempt failed, cascading",
			slog.String("request_id", req.ID),
			slog.String("provider", name),
			slog.Any("err", err))
	}

	return fr.exhausted(ctx, req, attempts, lastErr, start)
}

// resolveChain produces the ordered candidate providers: the caller's
// explicit override when given, otherwise the registry's eligible list,
// both restricted to the required capability.
func (fr *FailoverRouter) resolveChain(req Request) ([]*provider.Provider, error) {
	var names []string
	switch {
	case req.Provider != "":
		names = []string{req.Provider}
	case len(req.Chain) > 0:
		names = req.Chain
	default:
		return fr.registry.Eligible(req.Capability), nil
	}

	chain := make([]*provider.Provider, 0, len(names))
	for _, name := range names {
		p, err := fr.registry.Lookup(name)
		if err != nil {
			return nil, err
		}
		if !p.HasCapability(req.Capability) {
			fr.logger.Debug("Skipping provider without required capability",
				slog.String("provider", name),
				slog.String("capability", req.Capability))
			continue
		}
		chain = append(chain, p)
	}
	return chain, nil
}

func (fr *FailoverRouter) attempt(ctx context.Context, p *provider.Provider, req Request) (*provider.CompletionResponse, time.Duration, error) {
	client, err := fr.registry.Client(p.Name())
	if err != nil {
		return nil, 0, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.Timeout()
	}

	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := client.Complete(attemptCtx, provider.CompletionRequest{
		Prompt:    req.Prompt,
		MaxTokens: req.MaxTokens,
	})
	latency := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, latency, fmt.Errorf("provider %s timed out after %s: %w", p.Name(), timeout, err)
		}
		return nil, latency, err
	}
	return resp, latency, nil
}

// exhausted handles the end of the chain: park the request in the queue, or
// fail with the full attempt trace when queuing is unavailable.
func (fr *FailoverRouter) exhausted(ctx context.Context, req Request, attempts []Attempt, lastErr error, start time.Time) Result {
	err := error(ErrAllProvidersUnavailable)
	if lastErr != nil {
		err = fmt.Errorf("%w: last error: %v", ErrAllProvidersUnavailable, lastErr)
	}

	if req.DisableQueue || fr.queue == nil {
		return Result{Outcome: OutcomeFailure, Err: err, Latency: time.Since(start), Attempted: attempts}
	}

	deadline := time.Now().Add(fr.queueWait)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	ticket := newTicket(req.ID)
	entry := &queue.Entry{
		Deadline: deadline,
		Run: func(qctx context.Context) {
			fr.publish(metrics.Event{Type: metrics.EventRequestDequeued, RequestID: req.ID})

			redo := req
			redo.DisableQueue = true
			redo.Deadline = time.Until(deadline)
			ticket.deliver(fr.Route(qctx, redo))
		},
		Expire: func() {
			fr.publish(metrics.Event{Type: metrics.EventRequestExpired, RequestID: req.ID})
			ticket.deliver(Result{
				Outcome:   OutcomeFailure,
				Err:       fmt.Errorf("%w: timed out in queue", ErrDeadlineExceeded),
				Attempted: attempts,
			})
		},
	}

	if qerr := fr.queue.Enqueue(entry); qerr != nil {
		return Result{Outcome: OutcomeFailure, Err: qerr, Latency: time.Since(start), Attempted: attempts}
	}

	fr.publish(metrics.Event{Type: metrics.EventRequestQueued, RequestID: req.ID})
	fr.logger.Info("Request queued awaiting provider recovery",
		slog.String("request_id", req.ID),
		slog.Time("deadline", deadline))

	return Result{Outcome: OutcomeQueued, Latency: time.Since(start), Attempted: attempts, Ticket: ticket}
}

func (fr *FailoverRouter) deadlineExceeded(req Request, attempts []Attempt, start time.Time) Result {
	fr.logger.Warn("Request deadline exceeded mid-cascade",
		slog.String("request_id", req.ID),
		slog.Int("attempts", len(attempts)))

	return Result{
		Outcome:   OutcomeFailure,
		Err:       fmt.Errorf("%w after %d attempts", ErrDeadlineExceeded, len(attempts)),
		Latency:   time.Since(start),
		Attempted: attempts,
	}
}

func (fr *FailoverRouter) publish(event metrics.Event) {
	if fr.collector != nil {
		fr.collector.Publish(event)
	}
}
