package xdispatch

import (
	"fmt"
	"time"
)

// DispatchRequest is the per-call dispatch configuration. Middleware order is
// significant: before/after-dispatch run first to last, after-failure last to
// first.
type DispatchRequest struct {
	Command       Command
	Handler       Handler
	AggregateType string
	// IdentityField names the Command field holding the aggregate identity.
	IdentityField string
	// IdentityPrefix is prepended to the resolved identity.
	IdentityPrefix string
	Timeout        time.Duration
	Middleware     []Middleware

	CommandUUID   string
	CorrelationID string
	CausationID   string
	Metadata      map[string]string
	Returning     Returning
}

// Validate reports structural problems that make the request undispatchable.
func (r DispatchRequest) Validate() error {
	switch {
	case r.Command == nil:
		return fmt.Errorf("%w: command is nil", ErrMalformedRequest)
	case r.Handler == nil:
		return fmt.Errorf("%w: handler is nil", ErrMalformedRequest)
	case r.AggregateType == "":
		return fmt.Errorf("%w: aggregate type is empty", ErrMalformedRequest)
	case r.IdentityField == "":
		return fmt.Errorf("%w: identity field is empty", ErrMalformedRequest)
	case r.Returning < ReturnNothing || r.Returning > ReturnExecutionResult:
		return fmt.Errorf("%w: unknown returning option %d", ErrMalformedRequest, r.Returning)
	}
	for i, mw := range r.Middleware {
		if mw == nil {
			return fmt.Errorf("%w: middleware %d is nil", ErrMalformedRequest, i)
		}
	}
	return nil
}
