package xdispatch

import (
	"maps"
	"time"
)

// Assign keys populated before the after-failure stage runs.
const (
	AssignError       = "error"
	AssignErrorReason = "error_reason"
)

// Pipeline is the per-dispatch context threaded through middleware. It is
// owned by a single Dispatch call and never shared.
type Pipeline struct {
	Command       Command
	CommandUUID   string
	CorrelationID string
	CausationID   string
	Metadata      map[string]string
	AggregateType string
	// Identity is empty until the identity field has been resolved.
	Identity     string
	DispatchedAt time.Time

	// Response, when non-nil after the final stage, replaces the default
	// result. An error value is returned as the dispatch error.
	Response any
	Halted   bool
	Assigns  map[string]any
}

func newPipeline(req *DispatchRequest, now time.Time) *Pipeline {
	return &Pipeline{
		Command:       req.Command,
		CommandUUID:   req.CommandUUID,
		CorrelationID: req.CorrelationID,
		CausationID:   req.CausationID,
		Metadata:      maps.Clone(req.Metadata),
		AggregateType: req.AggregateType,
		DispatchedAt:  now,
		Assigns:       map[string]any{},
	}
}

// Assign stores a value under key.
func (p *Pipeline) Assign(key string, v any) *Pipeline {
	if p.Assigns == nil {
		p.Assigns = map[string]any{}
	}
	p.Assigns[key] = v
	return p
}

// Assigned reads a value stored under key.
func (p *Pipeline) Assigned(key string) (any, bool) {
	v, ok := p.Assigns[key]
	return v, ok
}

// Halt stops the remaining before/after-dispatch middleware of the current stage.
func (p *Pipeline) Halt() *Pipeline {
	p.Halted = true
	return p
}

// Respond sets the caller-visible response.
func (p *Pipeline) Respond(v any) *Pipeline {
	p.Response = v
	return p
}

// Error returns the failure assigned for the after-failure stage, if any.
func (p *Pipeline) Error() error {
	if err, ok := p.Assigns[AssignError].(error); ok {
		return err
	}
	return nil
}

// ErrorReason returns the failure detail assigned for the after-failure stage.
func (p *Pipeline) ErrorReason() (any, bool) {
	return p.Assigned(AssignErrorReason)
}

// response collapses the pipeline into the public result, falling back to
// the outcome-derived default when no stage responded.
func (p *Pipeline) response(value any, err error) (any, error) {
	switch r := p.Response.(type) {
	case nil:
		return value, err
	case error:
		return nil, r
	default:
		return r, nil
	}
}
