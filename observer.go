package xdispatch

import (
	"github.com/trickstertwo/xlog"
)

// Observer receives dispatcher lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver is an Adapter that emits dispatcher events via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil {
		return
	}
	ev := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("command_uuid", e.CommandUUID),
		xlog.Str("correlation_id", e.CorrelationID),
		xlog.Str("aggregate_type", e.AggregateType),
		xlog.Str("identity", e.Identity),
	)
	if e.Duration > 0 {
		ev = ev.With(xlog.Dur("duration", e.Duration))
	}
	switch {
	case e.Type == AggregateUnavailable:
		ev.Error().Err(e.Err).Msg("xdispatch event")
	case e.Outcome == OutcomeTimeout || e.Outcome == OutcomeCrashed:
		ev.Warn().Str("outcome", string(e.Outcome)).Err(e.Err).Msg("xdispatch event")
	default:
		ev.Debug().Err(e.Err).Msg("xdispatch event")
	}
}
