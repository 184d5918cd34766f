package memory

import (
	"fmt"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xdispatch"
	"github.com/trickstertwo/xlog"
)

// Use builds a Dispatcher on a new in-memory registry, installs it as the
// process-wide default, and returns both.
//
// Example:
//
//	d, reg := memory.Use(memory.Config{StrictTypes: true},
//	    memory.WithLogger(logger),
//	    memory.WithMiddleware(xdispatch.LoggingMiddleware(logger, nil)),
//	)
//	reg.Register("account", memory.Definition{Init: newAccount, Apply: applyAccount})
func Use(cfg Config, opts ...Option) (*xdispatch.Dispatcher, *Registry) {
	reg := NewRegistry(cfg)
	bb := xdispatch.NewDispatcherBuilder().WithRegistryInstance(reg)
	for _, o := range opts {
		if o != nil {
			o(bb)
		}
	}
	d, err := bb.Build()
	if err != nil {
		panic(fmt.Errorf("memory.Use: %w", err))
	}
	xdispatch.SetDefault(d)
	return d, reg
}

// Builder returns a DispatcherBuilder selecting this registry by name with cfg.
func Builder(cfg Config) *xdispatch.DispatcherBuilder {
	return xdispatch.NewDispatcherBuilder().WithRegistry(RegistryName, cfg.toMap())
}

// Option configures the xdispatch.Dispatcher when calling Use.
type Option func(*xdispatch.DispatcherBuilder)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(b *xdispatch.DispatcherBuilder) { b.WithLogger(l) }
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(b *xdispatch.DispatcherBuilder) { b.WithClock(c) }
}

// WithMiddleware adds dispatcher-wide middleware.
func WithMiddleware(mw ...xdispatch.Middleware) Option {
	return func(b *xdispatch.DispatcherBuilder) { b.WithMiddleware(mw...) }
}

// WithDefaultTimeout sets the execution timeout for requests without one (default: 5s).
func WithDefaultTimeout(d time.Duration) Option {
	return func(b *xdispatch.DispatcherBuilder) { b.WithDefaultTimeout(d) }
}

// WithObserver attaches observers for lifecycle events.
func WithObserver(obs ...xdispatch.Observer) Option {
	return func(b *xdispatch.DispatcherBuilder) { b.WithObserver(obs...) }
}

// WithObserverPool configures async observer pool for non-blocking notifications.
func WithObserverPool(workers, bufferSize int) Option {
	return func(b *xdispatch.DispatcherBuilder) { b.WithObserverPool(workers, bufferSize) }
}
