package memory

import (
	"context"
	"sync"

	"github.com/trickstertwo/xdispatch"
)

// Aggregate is one in-memory aggregate instance. Executions are serialized;
// state commits only when the handler succeeds and the execution context is
// still live, so an execution abandoned on timeout leaves the instance as it was.
type Aggregate struct {
	aggregateType string
	identity      string
	def           Definition
	metrics       *registryMetrics

	// sem is a one-slot semaphore; a channel so waiting honors ctx.
	sem chan struct{}

	mu      sync.RWMutex
	state   any
	version int
}

var _ xdispatch.Aggregate = (*Aggregate)(nil)

func newAggregate(aggregateType, identity string, def Definition, m *registryMetrics) *Aggregate {
	a := &Aggregate{
		aggregateType: aggregateType,
		identity:      identity,
		def:           def,
		metrics:       m,
		sem:           make(chan struct{}, 1),
	}
	if def.Init != nil {
		a.state = def.Init()
	}
	return a
}

// Execute runs h against the current state and folds the produced events.
func (a *Aggregate) Execute(ctx context.Context, cmd xdispatch.Command, h xdispatch.Handler) (xdispatch.ExecutionResult, error) {
	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return xdispatch.ExecutionResult{}, ctx.Err()
	}
	// Released on panic too; the dispatcher recovers it upstream.
	defer func() { <-a.sem }()

	a.metrics.executed.Add(1)
	state, version := a.Snapshot()

	events, err := h(ctx, state, cmd)
	if err != nil {
		a.metrics.discarded.Add(1)
		return xdispatch.ExecutionResult{}, err
	}
	if err := ctx.Err(); err != nil {
		a.metrics.discarded.Add(1)
		return xdispatch.ExecutionResult{}, err
	}

	if a.def.Apply != nil {
		for _, evt := range events {
			state = a.def.Apply(state, evt)
		}
	}
	version += len(events)

	a.mu.Lock()
	a.state = state
	a.version = version
	a.mu.Unlock()
	a.metrics.committed.Add(1)

	return xdispatch.ExecutionResult{AggregateVersion: version, Events: events, State: state}, nil
}

// Snapshot returns the committed state and version.
func (a *Aggregate) Snapshot() (any, int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state, a.version
}

func (a *Aggregate) AggregateType() string { return a.aggregateType }
func (a *Aggregate) Identity() string      { return a.identity }
