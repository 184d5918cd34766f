package xdispatch

import (
	"context"
	"sync"
)

var (
	defaultDispatcher   *Dispatcher
	defaultDispatcherMu sync.RWMutex
)

// Default returns the process-wide Dispatcher installed with SetDefault.
func Default() (*Dispatcher, error) {
	defaultDispatcherMu.RLock()
	defer defaultDispatcherMu.RUnlock()
	if defaultDispatcher == nil {
		return nil, ErrDefaultNotInitialized
	}
	return defaultDispatcher, nil
}

// SetDefault replaces the process-wide default Dispatcher.
func SetDefault(d *Dispatcher) {
	if d == nil {
		panic("xdispatch: SetDefault called with nil Dispatcher")
	}
	defaultDispatcherMu.Lock()
	defaultDispatcher = d
	defaultDispatcherMu.Unlock()
}

// Dispatch is the Facade using the default dispatcher.
func Dispatch(ctx context.Context, req DispatchRequest) (any, error) {
	d, err := Default()
	if err != nil {
		return nil, err
	}
	return d.Dispatch(ctx, req)
}
