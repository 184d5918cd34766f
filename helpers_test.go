package xdispatch

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder returns middleware appending "<name>.<stage>" to calls for every
// hook it runs. Overrides run after the call is recorded.
func recorder(name string, calls *[]string, override Hooks) Middleware {
	wrap := func(stage string, f PipelineFunc) PipelineFunc {
		return func(ctx context.Context, p *Pipeline) *Pipeline {
			*calls = append(*calls, name+"."+stage)
			if f != nil {
				return f(ctx, p)
			}
			return p
		}
	}
	return Hooks{
		Before:  wrap("before", override.Before),
		After:   wrap("after", override.After),
		Failure: wrap("failure", override.Failure),
	}
}

// directRegistry opens aggregates that run the handler inline with a nil state.
func directRegistry(opened *atomic.Int32) Registry {
	return RegistryFunc(func(ctx context.Context, aggregateType, identity string) (Aggregate, error) {
		if opened != nil {
			opened.Add(1)
		}
		return AggregateFunc(func(ctx context.Context, cmd Command, h Handler) (ExecutionResult, error) {
			events, err := h(ctx, nil, cmd)
			if err != nil {
				return ExecutionResult{}, err
			}
			return ExecutionResult{AggregateVersion: len(events), Events: events, State: "state"}, nil
		}), nil
	})
}

func newTestDispatcher(t *testing.T, reg Registry, init func(b *DispatcherBuilder)) *Dispatcher {
	t.Helper()
	b := NewDispatcherBuilder().WithRegistryInstance(reg)
	if init != nil {
		init(b)
	}
	d, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func okHandler(events ...any) Handler {
	return func(ctx context.Context, state any, cmd Command) ([]any, error) {
		return events, nil
	}
}

func errHandler(err error) Handler {
	return func(ctx context.Context, state any, cmd Command) ([]any, error) {
		return nil, err
	}
}
