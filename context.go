package xdispatch

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// ctxKey is the base for all context keys in xdispatch (prevents collisions).
type ctxKey string

const (
	loggerCtxKey ctxKey = "xdispatch:logger"
	clockCtxKey  ctxKey = "xdispatch:clock"
)

func injectLogger(ctx context.Context, l *xlog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerCtxKey, l)
}

// LoggerFromContext returns the dispatcher logger visible to handlers and middleware.
func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	if l, ok := ctx.Value(loggerCtxKey).(*xlog.Logger); ok && l != nil {
		return l, true
	}
	return nil, false
}

func injectClock(ctx context.Context, c xclock.Clock) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, clockCtxKey, c)
}

// ClockFromContext returns the dispatcher clock visible to handlers and middleware.
func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	if c, ok := ctx.Value(clockCtxKey).(xclock.Clock); ok && c != nil {
		return c, true
	}
	return nil, false
}
