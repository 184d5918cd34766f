package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xdispatch"
)

const RegistryName = "memory"

func init() {
	if err := xdispatch.RegisterRegistry(RegistryName, func(cfg map[string]any) (xdispatch.Registry, error) {
		return NewRegistry(ConfigFromMap(cfg)), nil
	}); err != nil {
		panic(fmt.Errorf("xdispatch/memory: failed to register registry: %w", err))
	}
}

var (
	ErrUnknownAggregateType = errors.New("memory registry: unknown aggregate type")
	ErrRegistryFull         = errors.New("memory registry: aggregate limit reached")
	ErrRegistryClosed       = errors.New("memory registry is closed")
)

// Config controls memory registry behavior.
type Config struct {
	// StrictTypes rejects Open for aggregate types without a registered Definition.
	StrictTypes bool
	// MaxAggregates caps live instances (default: 0 = unlimited).
	MaxAggregates int
}

func ConfigFromMap(cfg map[string]any) Config {
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return d
		}
	}
	getBool := func(k string, d bool) bool {
		if v, ok := cfg[k].(bool); ok {
			return v
		}
		return d
	}
	return Config{
		StrictTypes:   getBool("strict_types", false),
		MaxAggregates: max(0, getInt("max_aggregates", 0)),
	}
}

func (c Config) toMap() map[string]any {
	return map[string]any{
		"strict_types":   c.StrictTypes,
		"max_aggregates": c.MaxAggregates,
	}
}

// Applier folds one event into aggregate state and returns the new state.
type Applier func(state any, evt any) any

// Definition describes how instances of an aggregate type start and evolve.
type Definition struct {
	// Init returns the zero state of a new instance. nil means a nil state.
	Init func() any
	// Apply folds produced events into state. nil keeps the state unchanged.
	Apply Applier
}

// Registry implements xdispatch.Registry with in-process aggregate instances
// (dev/testing). Instances live until Close.
type Registry struct {
	cfg Config

	defsMu sync.RWMutex
	defs   map[string]Definition

	mu         sync.Mutex
	aggregates map[key]*Aggregate

	closed  atomic.Bool
	metrics *registryMetrics
}

type key struct {
	aggregateType string
	identity      string
}

type registryMetrics struct {
	opened    atomic.Uint64
	created   atomic.Uint64
	executed  atomic.Uint64
	committed atomic.Uint64
	discarded atomic.Uint64
}

var _ xdispatch.Registry = (*Registry)(nil)

// NewRegistry creates an empty in-memory registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:        cfg,
		defs:       make(map[string]Definition),
		aggregates: make(map[key]*Aggregate),
		metrics:    &registryMetrics{},
	}
}

// Register installs the Definition used for new instances of aggregateType.
// Existing instances keep the definition they were created with.
func (r *Registry) Register(aggregateType string, def Definition) *Registry {
	r.defsMu.Lock()
	r.defs[aggregateType] = def
	r.defsMu.Unlock()
	return r
}

// Open returns the instance for (aggregateType, identity), creating it on first access.
func (r *Registry) Open(ctx context.Context, aggregateType, identity string) (xdispatch.Aggregate, error) {
	if r.closed.Load() {
		return nil, ErrRegistryClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.metrics.opened.Add(1)

	k := key{aggregateType: aggregateType, identity: identity}
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.aggregates[k]; ok {
		return a, nil
	}

	r.defsMu.RLock()
	def, ok := r.defs[aggregateType]
	r.defsMu.RUnlock()
	if !ok && r.cfg.StrictTypes {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAggregateType, aggregateType)
	}
	if r.cfg.MaxAggregates > 0 && len(r.aggregates) >= r.cfg.MaxAggregates {
		return nil, ErrRegistryFull
	}

	a := newAggregate(aggregateType, identity, def, r.metrics)
	r.aggregates[k] = a
	r.metrics.created.Add(1)
	return a, nil
}

// Lookup returns an existing instance without creating one.
func (r *Registry) Lookup(aggregateType, identity string) (*Aggregate, bool) {
	r.mu.Lock()
	a, ok := r.aggregates[key{aggregateType: aggregateType, identity: identity}]
	r.mu.Unlock()
	return a, ok
}

// Len reports the number of live instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.aggregates)
}

// Close drops all instances. Idempotent.
func (r *Registry) Close(_ context.Context) error {
	if r.closed.Swap(true) {
		return nil
	}
	r.mu.Lock()
	r.aggregates = make(map[key]*Aggregate)
	r.mu.Unlock()
	return nil
}

// Stats returns registry telemetry.
type Stats struct {
	Opened    uint64
	Created   uint64
	Executed  uint64
	Committed uint64
	Discarded uint64
}

// Stats returns current registry metrics.
func (r *Registry) Stats() Stats {
	return Stats{
		Opened:    r.metrics.opened.Load(),
		Created:   r.metrics.created.Load(),
		Executed:  r.metrics.executed.Load(),
		Committed: r.metrics.committed.Load(),
		Discarded: r.metrics.discarded.Load(),
	}
}
