package xdispatch

import (
	"errors"
	"fmt"
)

// Public dispatch failure kinds. Handler-reported kinds are passed through
// verbatim alongside these.
var (
	// ErrHalted means a before-dispatch middleware halted the pipeline.
	ErrHalted = errors.New("xdispatch: halted")
	// ErrInvalidAggregateIdentity means the command identity field was missing or empty.
	ErrInvalidAggregateIdentity = errors.New("xdispatch: invalid aggregate identity")
	// ErrAggregateExecutionFailed means the handler panicked.
	ErrAggregateExecutionFailed = errors.New("xdispatch: aggregate execution failed")
	// ErrAggregateExecutionTimeout means the handler did not finish within the timeout.
	ErrAggregateExecutionTimeout = errors.New("xdispatch: aggregate execution timeout")
	// ErrAggregateUnavailable wraps registry failures while opening an aggregate.
	ErrAggregateUnavailable = errors.New("xdispatch: aggregate unavailable")
)

var (
	ErrMalformedRequest       = errors.New("xdispatch: malformed dispatch request")
	ErrDispatcherClosed       = errors.New("xdispatch: dispatcher closed")
	ErrNoRegistryConfigured   = errors.New("xdispatch: no aggregate registry configured")
	ErrObserverPoolShutdown   = errors.New("xdispatch: observer pool shutdown timeout")
	ErrDefaultNotInitialized  = errors.New("xdispatch: default dispatcher not initialized")
	errNilAggregateFromLookup = errors.New("registry returned a nil aggregate")
	// ErrExecutionExited is the crash reason when the execution goroutine
	// exited without returning or panicking (runtime.Goexit).
	ErrExecutionExited        = errors.New("xdispatch: execution exited without returning")
)

type ErrUnknownRegistry struct{ name string }

func (e ErrUnknownRegistry) Error() string { return fmt.Sprintf("unknown aggregate registry: %s", e.name) }

// ExecutionError is a handler failure carrying a stable classification and a
// free-form diagnostic. Only Kind reaches the dispatch caller; Detail is
// visible to after-failure middleware as the error reason.
type ExecutionError struct {
	Kind   error
	Detail any
}

// Fail builds an ExecutionError.
func Fail(kind error, detail any) error {
	return &ExecutionError{Kind: kind, Detail: detail}
}

func (e *ExecutionError) Error() string {
	if e.Kind == nil {
		return fmt.Sprintf("execution error: %v", e.Detail)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Detail)
}

func (e *ExecutionError) Unwrap() error { return e.Kind }

// PanicError captures a recovered handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic recovered: %v", e.Value) }
