package xdispatch

import "errors"

// OutcomeKind enumerates how an isolated execution ended.
type OutcomeKind string

const (
	OutcomeOK      OutcomeKind = "ok"
	OutcomeError   OutcomeKind = "error"
	OutcomeTimeout OutcomeKind = "timeout"
	OutcomeCrashed OutcomeKind = "crashed"
)

// Outcome is the internal result of an execution before it collapses to the
// public result. OutcomeError covers both the simple form (Err only) and the
// rich form (Err plus Detail, HasDetail set).
type Outcome struct {
	Kind      OutcomeKind
	Err       error
	Detail    any
	HasDetail bool
	Result    ExecutionResult
}

// outcomeFromError converts a handler/aggregate error into an Outcome.
func outcomeFromError(err error) Outcome {
	var ee *ExecutionError
	if errors.As(err, &ee) && ee.Kind != nil {
		return Outcome{Kind: OutcomeError, Err: ee.Kind, Detail: ee.Detail, HasDetail: true}
	}
	return Outcome{Kind: OutcomeError, Err: err}
}

// Classification is the pipeline-facing and caller-facing view of an Outcome.
type Classification struct {
	// Assigns holds the error and error_reason keys for after-failure; empty on success.
	Assigns map[string]any
	// Err is the public error; nil on success.
	Err error
}

// Failed reports whether the classification routes to after-failure.
func (c Classification) Failed() bool { return c.Err != nil }

// Classify maps an Outcome to its assigns and public error. It is pure.
func Classify(o Outcome) Classification {
	switch o.Kind {
	case OutcomeOK:
		return Classification{Assigns: map[string]any{}}
	case OutcomeError:
		err := o.Err
		if err == nil {
			err = ErrAggregateExecutionFailed
		}
		a := map[string]any{AssignError: err}
		if o.HasDetail {
			a[AssignErrorReason] = o.Detail
		}
		return Classification{Assigns: a, Err: err}
	case OutcomeCrashed:
		return Classification{
			Assigns: map[string]any{
				AssignError:       ErrAggregateExecutionFailed,
				AssignErrorReason: o.Detail,
			},
			Err: ErrAggregateExecutionFailed,
		}
	case OutcomeTimeout:
		return Classification{
			Assigns: map[string]any{AssignError: ErrAggregateExecutionTimeout},
			Err:     ErrAggregateExecutionTimeout,
		}
	default:
		return Classification{
			Assigns: map[string]any{AssignError: ErrAggregateExecutionFailed, AssignErrorReason: o.Kind},
			Err:     ErrAggregateExecutionFailed,
		}
	}
}

// failure builds a Classification for early exits (halt, identity, registry).
func failure(err error, reason any, hasReason bool) Classification {
	a := map[string]any{AssignError: err}
	if hasReason {
		a[AssignErrorReason] = reason
	}
	return Classification{Assigns: a, Err: err}
}
