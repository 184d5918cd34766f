package xdispatch

import (
	"context"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// DispatcherBuilder constructs Dispatcher instances (Builder pattern).
type DispatcherBuilder struct {
	registryName string
	registryCfg  map[string]any
	registryInst Registry

	middlewares    []Middleware
	observers      []Observer
	logger         *xlog.Logger
	clock          xclock.Clock
	defaultTimeout time.Duration

	poolWorkers int
	poolBuffer  int
}

// NewDispatcherBuilder returns a new builder with sensible defaults.
func NewDispatcherBuilder() *DispatcherBuilder {
	return &DispatcherBuilder{defaultTimeout: DefaultTimeout}
}

// WithRegistry selects a registered aggregate registry backend by name.
func (db *DispatcherBuilder) WithRegistry(name string, cfg map[string]any) *DispatcherBuilder {
	db.registryName = name
	db.registryCfg = cfg
	return db
}

// WithRegistryInstance accepts a ready Registry (e.g., from an adapter constructor).
func (db *DispatcherBuilder) WithRegistryInstance(r Registry) *DispatcherBuilder {
	db.registryInst = r
	return db
}

// WithMiddleware adds dispatcher-wide middleware. It runs ahead of the
// middleware carried by each request.
func (db *DispatcherBuilder) WithMiddleware(mw ...Middleware) *DispatcherBuilder {
	for _, m := range mw {
		if m != nil {
			db.middlewares = append(db.middlewares, m)
		}
	}
	return db
}

func (db *DispatcherBuilder) WithObserver(obs ...Observer) *DispatcherBuilder {
	for _, o := range obs {
		if o != nil {
			db.observers = append(db.observers, o)
		}
	}
	return db
}

// WithObserverPool notifies observers asynchronously from a worker pool.
func (db *DispatcherBuilder) WithObserverPool(workers, bufferSize int) *DispatcherBuilder {
	db.poolWorkers = workers
	db.poolBuffer = bufferSize
	return db
}

func (db *DispatcherBuilder) WithLogger(l *xlog.Logger) *DispatcherBuilder {
	db.logger = l
	return db
}

func (db *DispatcherBuilder) WithClock(c xclock.Clock) *DispatcherBuilder {
	db.clock = c
	return db
}

// WithDefaultTimeout bounds executions whose request carries no timeout.
func (db *DispatcherBuilder) WithDefaultTimeout(d time.Duration) *DispatcherBuilder {
	if d > 0 {
		db.defaultTimeout = d
	}
	return db
}

// WithConfig applies a loaded Config.
func (db *DispatcherBuilder) WithConfig(cfg Config) *DispatcherBuilder {
	if cfg.Registry.Name != "" {
		db.WithRegistry(cfg.Registry.Name, cfg.Registry.Options)
	}
	db.WithDefaultTimeout(cfg.DefaultTimeout)
	if cfg.ObserverPool.Workers > 0 || cfg.ObserverPool.BufferSize > 0 {
		db.WithObserverPool(cfg.ObserverPool.Workers, cfg.ObserverPool.BufferSize)
	}
	return db
}

func (db *DispatcherBuilder) Build() (*Dispatcher, error) {
	var reg Registry
	var err error
	switch {
	case db.registryInst != nil:
		reg = db.registryInst
	case db.registryName != "":
		reg, err = NewRegistry(db.registryName, db.registryCfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoRegistryConfigured
	}

	clk := db.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := db.logger
	if lg == nil {
		lg = xlog.Default()
	}

	d := &Dispatcher{
		registry:       reg,
		clock:          clk,
		logger:         lg,
		middlewares:    db.middlewares,
		defaultTimeout: db.defaultTimeout,
		metrics:        &dispatchMetrics{},
	}
	if db.poolWorkers > 0 || db.poolBuffer > 0 {
		d.observerPool = NewObserverPool(db.poolWorkers, db.poolBuffer)
	}

	// Attach logging observer first unless one was supplied.
	hasLoggingObserver := false
	for _, o := range db.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		d.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range db.observers {
		d.AddObserver(o)
	}
	return d, nil
}

// New constructs a Dispatcher via Builder and returns a close func for convenience.
func New(init func(b *DispatcherBuilder)) (*Dispatcher, func() error, error) {
	b := NewDispatcherBuilder()
	if init != nil {
		init(b)
	}
	d, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return d.Close(context.Background()) }
	return d, closeFn, nil
}
