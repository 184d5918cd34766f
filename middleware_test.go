package xdispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_BeforeAndAfterRunInListOrder(t *testing.T) {
	var calls []string
	mws := []Middleware{recorder("a", &calls, Hooks{}), recorder("b", &calls, Hooks{}), recorder("c", &calls, Hooks{})}

	p := &Pipeline{}
	Chain(context.Background(), p, StageBeforeDispatch, mws)
	Chain(context.Background(), p, StageAfterDispatch, mws)

	assert.Equal(t, []string{"a.before", "b.before", "c.before", "a.after", "b.after", "c.after"}, calls)
}

func TestChain_AfterFailureRunsInReverse(t *testing.T) {
	var calls []string
	mws := []Middleware{recorder("a", &calls, Hooks{}), recorder("b", &calls, Hooks{}), recorder("c", &calls, Hooks{})}

	Chain(context.Background(), &Pipeline{}, StageAfterFailure, mws)

	assert.Equal(t, []string{"c.failure", "b.failure", "a.failure"}, calls)
}

func TestChain_HaltSkipsRemainingBeforeDispatch(t *testing.T) {
	var calls []string
	halt := Hooks{Before: func(ctx context.Context, p *Pipeline) *Pipeline { return p.Halt() }}
	mws := []Middleware{recorder("a", &calls, halt), recorder("b", &calls, Hooks{})}

	p := Chain(context.Background(), &Pipeline{}, StageBeforeDispatch, mws)

	assert.True(t, p.Halted)
	assert.Equal(t, []string{"a.before"}, calls)
}

func TestChain_HaltSkipsAfterDispatch(t *testing.T) {
	var calls []string
	halt := Hooks{After: func(ctx context.Context, p *Pipeline) *Pipeline { return p.Halt() }}
	mws := []Middleware{recorder("a", &calls, halt), recorder("b", &calls, Hooks{})}

	Chain(context.Background(), &Pipeline{}, StageAfterDispatch, mws)

	assert.Equal(t, []string{"a.after"}, calls)
}

func TestChain_AfterFailureIgnoresHalt(t *testing.T) {
	var calls []string
	halt := Hooks{Failure: func(ctx context.Context, p *Pipeline) *Pipeline { return p.Halt() }}
	mws := []Middleware{recorder("a", &calls, Hooks{}), recorder("b", &calls, halt)}

	p := Chain(context.Background(), &Pipeline{Halted: true}, StageAfterFailure, mws)

	assert.True(t, p.Halted)
	assert.Equal(t, []string{"b.failure", "a.failure"}, calls)
}

func TestChain_NilReturnKeepsPipeline(t *testing.T) {
	nilMW := Hooks{Before: func(ctx context.Context, p *Pipeline) *Pipeline {
		p.Assign("seen", true)
		return nil
	}}
	p := &Pipeline{}

	out := Chain(context.Background(), p, StageBeforeDispatch, []Middleware{nilMW})

	require.Same(t, p, out)
	v, ok := out.Assigned("seen")
	assert.True(t, ok)
	assert.Equal(t, true, v)
}

func TestChain_ReplacedPipelineFlowsToNext(t *testing.T) {
	replacement := &Pipeline{Assigns: map[string]any{"copy": true}}
	var seen *Pipeline
	mws := []Middleware{
		Hooks{Before: func(ctx context.Context, p *Pipeline) *Pipeline { return replacement }},
		Hooks{Before: func(ctx context.Context, p *Pipeline) *Pipeline { seen = p; return p }},
	}

	out := Chain(context.Background(), &Pipeline{}, StageBeforeDispatch, mws)

	assert.Same(t, replacement, seen)
	assert.Same(t, replacement, out)
}

func TestChain_LastResponderWins(t *testing.T) {
	mws := []Middleware{
		Hooks{After: func(ctx context.Context, p *Pipeline) *Pipeline { return p.Respond("first") }},
		Hooks{After: func(ctx context.Context, p *Pipeline) *Pipeline { return p.Respond("second") }},
	}

	p := Chain(context.Background(), &Pipeline{}, StageAfterDispatch, mws)

	assert.Equal(t, "second", p.Response)
}

func TestChain_UnknownStageIsNoop(t *testing.T) {
	var calls []string
	Chain(context.Background(), &Pipeline{}, Stage("bogus"), []Middleware{recorder("a", &calls, Hooks{})})
	assert.Empty(t, calls)
}

func TestHooks_UnsetPassThrough(t *testing.T) {
	p := &Pipeline{}
	h := Hooks{}
	ctx := context.Background()
	assert.Same(t, p, h.BeforeDispatch(ctx, p))
	assert.Same(t, p, h.AfterDispatch(ctx, p))
	assert.Same(t, p, h.AfterFailure(ctx, p))
}

func TestValidationMiddleware(t *testing.T) {
	errAmount := errors.New("amount must be positive")
	mw := ValidationMiddleware(func(ctx context.Context, cmd Command) error {
		if v, _ := cmd.Field("amount"); v.(int) <= 0 {
			return errAmount
		}
		return nil
	})

	t.Run("rejects", func(t *testing.T) {
		p := Chain(context.Background(), &Pipeline{Command: Fields{"amount": 0}}, StageBeforeDispatch, []Middleware{mw})
		assert.True(t, p.Halted)
		assert.Equal(t, errAmount, p.Response)
	})

	t.Run("accepts", func(t *testing.T) {
		p := Chain(context.Background(), &Pipeline{Command: Fields{"amount": 5}}, StageBeforeDispatch, []Middleware{mw})
		assert.False(t, p.Halted)
		assert.Nil(t, p.Response)
	})
}
