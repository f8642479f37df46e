package services

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	metrics "github.com/inference-gateway/chatledger/internal/metrics"
)

// ErrDispatcherStopped is returned when publishing after Stop
var ErrDispatcherStopped = errors.New("billing dispatcher stopped")

// Dispatcher delivers billing events to the pipeline. Events of one
// identity always land on the same worker so they are billed in order.
// Before Start, Publish handles events synchronously.
type Dispatcher struct {
	pipeline *BillingPipeline
	workers  int
	buffer   int

	mu      sync.RWMutex
	queues  []chan domain.BillingEvent
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given worker count and per-worker buffer
func NewDispatcher(pipeline *BillingPipeline, workers, buffer int) *Dispatcher {
	return &Dispatcher{pipeline: pipeline, workers: max(workers, 1), buffer: max(buffer, 0)}
}

// Start launches the workers. Events are processed with a context that
// survives cancellation of ctx so queued events drain on shutdown.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}

	workCtx := context.WithoutCancel(ctx)
	d.queues = make([]chan domain.BillingEvent, d.workers)
	for i := range d.queues {
		queue := make(chan domain.BillingEvent, d.buffer)
		d.queues[i] = queue
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range queue {
				metrics.BillingQueueDepth.Dec()
				d.process(workCtx, ev)
			}
		}()
	}
	d.started = true
	logger.Info("billing dispatcher started", "workers", d.workers, "buffer", d.buffer)
}

// Stop closes the queues and waits for queued events to be billed
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	d.wg.Wait()
	logger.Info("billing dispatcher stopped")
}

// Publish hands an event to its worker, or handles it inline before Start
func (d *Dispatcher) Publish(ctx context.Context, event domain.BillingEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}
	if !d.started {
		d.process(ctx, event)
		return nil
	}

	queue := d.queues[d.route(event.GetIdentity())]
	select {
	case queue <- event:
		metrics.BillingQueueDepth.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) route(identity string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return int(h.Sum32() % uint32(len(d.queues)))
}

// process bills one event. Persistence failures go to the dead letter
// table and are not retried here.
func (d *Dispatcher) process(ctx context.Context, event domain.BillingEvent) {
	_, err := d.pipeline.Handle(ctx, event)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDuplicateExchange):
		metrics.BillingEvents.WithLabelValues(string(event.Kind()), "duplicate").Inc()
		logger.Debug("duplicate billing event ignored", "exchange", event.GetExchangeID().String())
	default:
		logger.Error("billing event failed", "exchange", event.GetExchangeID().String(),
			"identity", event.GetIdentity(), "error", err)
		_ = d.pipeline.DeadLetter(ctx, event, err)
	}
}
