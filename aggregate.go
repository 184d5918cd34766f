package xdispatch

import (
	"context"
)

// Handler applies a command to aggregate state and returns the produced events.
// Return an error built with Fail to report a classification plus a detail.
type Handler func(ctx context.Context, state any, cmd Command) ([]any, error)

// ExecutionResult is what an aggregate reports after a successful execution.
type ExecutionResult struct {
	AggregateVersion int
	Events           []any
	State            any
}

// Aggregate is a handle to a single aggregate instance. Implementations
// serialize executions for the same identity and must stay consistent when the
// context is cancelled mid-execution.
type Aggregate interface {
	Execute(ctx context.Context, cmd Command, h Handler) (ExecutionResult, error)
}

// Registry locates aggregate instances, creating them on first access.
// Open must be safe for concurrent use.
type Registry interface {
	Open(ctx context.Context, aggregateType, identity string) (Aggregate, error)
}

// RegistryFunc adapts a function to Registry.
type RegistryFunc func(ctx context.Context, aggregateType, identity string) (Aggregate, error)

func (f RegistryFunc) Open(ctx context.Context, aggregateType, identity string) (Aggregate, error) {
	return f(ctx, aggregateType, identity)
}

// AggregateFunc adapts a function to Aggregate.
type AggregateFunc func(ctx context.Context, cmd Command, h Handler) (ExecutionResult, error)

func (f AggregateFunc) Execute(ctx context.Context, cmd Command, h Handler) (ExecutionResult, error) {
	return f(ctx, cmd, h)
}

// Returning selects the default success value of a dispatch.
type Returning int

const (
	// ReturnNothing returns a nil value on success.
	ReturnNothing Returning = iota
	// ReturnAggregateState returns ExecutionResult.State.
	ReturnAggregateState
	// ReturnAggregateVersion returns ExecutionResult.AggregateVersion.
	ReturnAggregateVersion
	// ReturnEvents returns ExecutionResult.Events.
	ReturnEvents
	// ReturnExecutionResult returns the whole ExecutionResult.
	ReturnExecutionResult
)

func (r Returning) value(res ExecutionResult) any {
	switch r {
	case ReturnAggregateState:
		return res.State
	case ReturnAggregateVersion:
		return res.AggregateVersion
	case ReturnEvents:
		return res.Events
	case ReturnExecutionResult:
		return res
	default:
		return nil
	}
}
