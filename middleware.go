package xdispatch

import (
	"context"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Stage names a point of the dispatch lifecycle where middleware runs.
type Stage string

const (
	StageBeforeDispatch Stage = "before_dispatch"
	StageAfterDispatch  Stage = "after_dispatch"
	StageAfterFailure   Stage = "after_failure"
)

// Middleware hooks into the three dispatch stages. Each hook receives the
// pipeline and returns it, possibly mutated.
type Middleware interface {
	BeforeDispatch(ctx context.Context, p *Pipeline) *Pipeline
	AfterDispatch(ctx context.Context, p *Pipeline) *Pipeline
	AfterFailure(ctx context.Context, p *Pipeline) *Pipeline
}

// PipelineFunc is a single stage hook.
type PipelineFunc func(ctx context.Context, p *Pipeline) *Pipeline

// Hooks is an Adapter that lets plain functions satisfy Middleware.
// Unset hooks pass the pipeline through.
type Hooks struct {
	Before  PipelineFunc
	After   PipelineFunc
	Failure PipelineFunc
}

var _ Middleware = Hooks{}

func (h Hooks) BeforeDispatch(ctx context.Context, p *Pipeline) *Pipeline {
	if h.Before == nil {
		return p
	}
	return h.Before(ctx, p)
}

func (h Hooks) AfterDispatch(ctx context.Context, p *Pipeline) *Pipeline {
	if h.After == nil {
		return p
	}
	return h.After(ctx, p)
}

func (h Hooks) AfterFailure(ctx context.Context, p *Pipeline) *Pipeline {
	if h.Failure == nil {
		return p
	}
	return h.Failure(ctx, p)
}

// Chain runs mws for stage against p. Before/after-dispatch run in list order
// and stop once the pipeline is halted. After-failure runs in reverse order and
// always visits every middleware.
func Chain(ctx context.Context, p *Pipeline, stage Stage, mws []Middleware) *Pipeline {
	switch stage {
	case StageAfterFailure:
		for i := len(mws) - 1; i >= 0; i-- {
			p = step(p, mws[i].AfterFailure(ctx, p))
		}
	case StageBeforeDispatch, StageAfterDispatch:
		for _, mw := range mws {
			if p.Halted {
				break
			}
			if stage == StageBeforeDispatch {
				p = step(p, mw.BeforeDispatch(ctx, p))
			} else {
				p = step(p, mw.AfterDispatch(ctx, p))
			}
		}
	}
	return p
}

// step keeps the current pipeline when a middleware returns nil.
func step(cur, next *Pipeline) *Pipeline {
	if next == nil {
		return cur
	}
	return next
}

const loggingStartedAt = "xdispatch:logging_started_at"

// LoggingMiddleware logs every stage of a dispatch with the elapsed time.
func LoggingMiddleware(l *xlog.Logger, clock xclock.Clock) Middleware {
	if clock == nil {
		clock = xclock.Default()
	}
	return Hooks{
		Before: func(ctx context.Context, p *Pipeline) *Pipeline {
			p.Assign(loggingStartedAt, clock.Now())
			l.Debug().
				Str("command_uuid", p.CommandUUID).
				Str("aggregate_type", p.AggregateType).
				Msg("dispatch start")
			return p
		},
		After: func(ctx context.Context, p *Pipeline) *Pipeline {
			l.Info().
				Str("command_uuid", p.CommandUUID).
				Str("aggregate_type", p.AggregateType).
				Str("identity", p.Identity).
				Dur("dur", loggingElapsed(p, clock)).
				Msg("dispatch ok")
			return p
		},
		Failure: func(ctx context.Context, p *Pipeline) *Pipeline {
			l.Warn().
				Str("command_uuid", p.CommandUUID).
				Str("aggregate_type", p.AggregateType).
				Str("identity", p.Identity).
				Dur("dur", loggingElapsed(p, clock)).
				Err(p.Error()).
				Msg("dispatch failed")
			return p
		},
	}
}

func loggingElapsed(p *Pipeline, clock xclock.Clock) time.Duration {
	if t, ok := p.Assigns[loggingStartedAt].(time.Time); ok {
		return clock.Since(t)
	}
	return 0
}

// ValidationMiddleware halts dispatch with the returned error when validate
// rejects the command. The error becomes the dispatch result.
func ValidationMiddleware(validate func(ctx context.Context, cmd Command) error) Middleware {
	return Hooks{
		Before: func(ctx context.Context, p *Pipeline) *Pipeline {
			if err := validate(ctx, p.Command); err != nil {
				return p.Respond(err).Halt()
			}
			return p
		},
	}
}
