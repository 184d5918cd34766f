package xdispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

var _ API = (*Dispatcher)(nil)

// Dispatcher routes commands to aggregates through the middleware pipeline.
// It is safe for concurrent use; no lock is held across Dispatch calls.
type Dispatcher struct {
	registry       Registry
	clock          xclock.Clock
	logger         *xlog.Logger
	middlewares    []Middleware
	defaultTimeout time.Duration
	observerPool   *ObserverPool
	observersMu    sync.RWMutex
	observers      []Observer
	metrics        *dispatchMetrics
	closed         atomic.Bool
	closeOnce      sync.Once
}

// dispatchMetrics uses lock-free atomics.
type dispatchMetrics struct {
	dispatched  atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	halted      atomic.Uint64
	timeouts    atomic.Uint64
	crashes     atomic.Uint64
	executionNs atomic.Int64
}

// Dispatch runs req through the pipeline and returns the caller-visible result:
// a value (nil unless Returning or a middleware response says otherwise) on
// success, or an error on failure. Expected failures are returned, never
// panicked. A malformed request returns an error wrapping ErrMalformedRequest
// without running any middleware.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (any, error) {
	if d.closed.Load() {
		return nil, ErrDispatcherClosed
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.CommandUUID == "" {
		req.CommandUUID = uuid.NewString()
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	mws := d.middlewares
	if len(req.Middleware) > 0 {
		mws = make([]Middleware, 0, len(d.middlewares)+len(req.Middleware))
		mws = append(mws, d.middlewares...)
		mws = append(mws, req.Middleware...)
	}

	ctx = injectClock(injectLogger(ctx, d.logger), d.clock)
	start := d.clock.Now()
	d.metrics.dispatched.Add(1)

	p := newPipeline(&req, start)
	d.notify(Event{Type: DispatchStart, CommandUUID: p.CommandUUID, CorrelationID: p.CorrelationID, AggregateType: p.AggregateType})

	p = Chain(ctx, p, StageBeforeDispatch, mws)
	if p.Halted {
		d.metrics.halted.Add(1)
		d.notify(Event{Type: DispatchHalted, CommandUUID: p.CommandUUID, CorrelationID: p.CorrelationID, AggregateType: p.AggregateType})
		return d.fail(ctx, p, mws, failure(ErrHalted, nil, false), start)
	}

	identity, ok := resolveIdentity(req.Command, req.IdentityField, req.IdentityPrefix)
	if !ok {
		return d.fail(ctx, p, mws, failure(ErrInvalidAggregateIdentity, nil, false), start)
	}
	p.Identity = identity

	agg, err := d.registry.Open(ctx, req.AggregateType, identity)
	if err == nil && agg == nil {
		err = errNilAggregateFromLookup
	}
	if err != nil {
		uerr := fmt.Errorf("%w: %s %q: %w", ErrAggregateUnavailable, req.AggregateType, identity, err)
		d.logger.Error().
			Str("aggregate_type", req.AggregateType).
			Str("identity", identity).
			Err(err).
			Msg("xdispatch: open aggregate failed")
		d.notify(Event{Type: AggregateUnavailable, CommandUUID: p.CommandUUID, CorrelationID: p.CorrelationID, AggregateType: p.AggregateType, Identity: identity, Err: err})
		return d.fail(ctx, p, mws, failure(uerr, err, true), start)
	}

	execStart := d.clock.Now()
	o := Execute(ctx, agg, req.Command, req.Handler, timeout)
	execDur := d.clock.Since(execStart)
	d.recordExecutionTime(execDur.Nanoseconds())

	switch o.Kind {
	case OutcomeTimeout:
		d.metrics.timeouts.Add(1)
		d.logger.Warn().
			Str("aggregate_type", req.AggregateType).
			Str("identity", identity).
			Dur("timeout", timeout).
			Msg("xdispatch: aggregate execution timeout")
	case OutcomeCrashed:
		d.metrics.crashes.Add(1)
		d.logger.Warn().
			Str("aggregate_type", req.AggregateType).
			Str("identity", identity).
			Str("reason", fmt.Sprint(o.Detail)).
			Msg("xdispatch: aggregate execution crashed (recovered)")
	}

	c := Classify(o)
	d.notify(Event{
		Type:          ExecutionDone,
		CommandUUID:   p.CommandUUID,
		CorrelationID: p.CorrelationID,
		AggregateType: p.AggregateType,
		Identity:      identity,
		Outcome:       o.Kind,
		Duration:      execDur,
		Err:           c.Err,
	})
	if c.Failed() {
		return d.fail(ctx, p, mws, c, start)
	}

	p = Chain(ctx, p, StageAfterDispatch, mws)
	d.metrics.succeeded.Add(1)
	v, err := p.response(req.Returning.value(o.Result), nil)
	d.done(p, start, err)
	return v, err
}

// fail is the shared failure path: assign error/error_reason, run
// after-failure, then compute the response.
func (d *Dispatcher) fail(ctx context.Context, p *Pipeline, mws []Middleware, c Classification, start time.Time) (any, error) {
	for k, v := range c.Assigns {
		p.Assign(k, v)
	}
	p = Chain(ctx, p, StageAfterFailure, mws)
	d.metrics.failed.Add(1)
	v, err := p.response(nil, c.Err)
	d.done(p, start, err)
	return v, err
}

func (d *Dispatcher) done(p *Pipeline, start time.Time, err error) {
	d.notify(Event{
		Type:          DispatchDone,
		CommandUUID:   p.CommandUUID,
		CorrelationID: p.CorrelationID,
		AggregateType: p.AggregateType,
		Identity:      p.Identity,
		Duration:      d.clock.Since(start),
		Err:           err,
	})
}

// GetMetrics returns current dispatcher metrics.
func (d *Dispatcher) GetMetrics() Metrics {
	m := Metrics{
		Dispatched:         d.metrics.dispatched.Load(),
		Succeeded:          d.metrics.succeeded.Load(),
		Failed:             d.metrics.failed.Load(),
		Halted:             d.metrics.halted.Load(),
		Timeouts:           d.metrics.timeouts.Load(),
		Crashes:            d.metrics.crashes.Load(),
		AvgExecutionTimeMs: float64(d.metrics.executionNs.Load()) / 1e6,
	}
	if d.observerPool != nil {
		m.EventsDropped = d.observerPool.Stats().Dropped
	}
	return m
}

// Health reports "degraded" when more than 5% of dispatches timed out or crashed.
func (d *Dispatcher) Health(ctx context.Context) HealthStatus {
	now := d.clock.Now()
	if d.closed.Load() {
		return HealthStatus{Status: "unhealthy", Timestamp: now, Message: "dispatcher is closed"}
	}
	m := d.GetMetrics()
	status := "healthy"
	if m.Dispatched > 0 {
		if rate := float64(m.Timeouts+m.Crashes) / float64(m.Dispatched); rate > 0.05 {
			status = "degraded"
		}
	}
	return HealthStatus{Status: status, Metrics: m, Timestamp: now}
}

// Close stops accepting dispatches and drains the observer pool. Idempotent.
// Executions abandoned on timeout are not waited for.
func (d *Dispatcher) Close(ctx context.Context) error {
	var closeErr error
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		if d.observerPool == nil {
			return
		}
		timeout := 5 * time.Second
		if dl, ok := ctx.Deadline(); ok {
			timeout = time.Until(dl)
		}
		if err := d.observerPool.Close(timeout); err != nil {
			d.logger.Warn().Err(err).Msg("xdispatch: observer pool shutdown timeout")
			closeErr = err
		}
	})
	return closeErr
}

// AddObserver registers an observer (thread-safe).
func (d *Dispatcher) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	d.observersMu.Lock()
	d.observers = append(d.observers, obs)
	d.observersMu.Unlock()
}

// RemoveObserver removes an observer. obs must be comparable (a pointer or
// struct observer, not an ObserverFunc).
func (d *Dispatcher) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	d.observersMu.Lock()
	defer d.observersMu.Unlock()
	for i, o := range d.observers {
		if o == obs {
			d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
			return
		}
	}
}

// notify hands e to the observer pool, or calls observers inline when no
// pool is configured.
func (d *Dispatcher) notify(e Event) {
	d.observersMu.RLock()
	if len(d.observers) == 0 {
		d.observersMu.RUnlock()
		return
	}
	obs := make([]Observer, len(d.observers))
	copy(obs, d.observers)
	d.observersMu.RUnlock()

	if d.observerPool != nil {
		d.observerPool.Notify(e, obs)
		return
	}
	for _, o := range obs {
		notifyOne(o, e, nil)
	}
}

// recordExecutionTime keeps an exponential moving average of execution time.
func (d *Dispatcher) recordExecutionTime(ns int64) {
	const alpha = 0.2
	for {
		cur := d.metrics.executionNs.Load()
		next := ns
		if cur != 0 {
			next = int64(float64(ns)*alpha + float64(cur)*(1-alpha))
		}
		if d.metrics.executionNs.CompareAndSwap(cur, next) {
			return
		}
	}
}
