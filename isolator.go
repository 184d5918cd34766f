package xdispatch

import (
	"context"
	"runtime/debug"
	"time"
)

// DefaultTimeout bounds an execution when neither the request nor the
// dispatcher configures one.
const DefaultTimeout = 5 * time.Second

// Execute runs h against agg in its own goroutine and waits for it at most
// timeout. The goroutine runs on a context detached from the caller's
// cancellation; it is cancelled on timeout and left to unwind on its own.
// A panic or runtime.Goexit inside the execution is captured as an
// OutcomeCrashed.
func Execute(ctx context.Context, agg Aggregate, cmd Command, h Handler, timeout time.Duration) Outcome {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ectx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	// Buffered so an abandoned execution can always deliver and exit.
	outCh := make(chan Outcome, 1)
	go func() {
		completed := false
		defer func() {
			if completed {
				return
			}
			if r := recover(); r != nil {
				outCh <- Outcome{Kind: OutcomeCrashed, Detail: &PanicError{Value: r, Stack: debug.Stack()}}
				return
			}
			// runtime.Goexit: unwound without a panic value
			outCh <- Outcome{Kind: OutcomeCrashed, Detail: ErrExecutionExited}
		}()
		res, err := agg.Execute(ectx, cmd, h)
		completed = true
		if err != nil {
			outCh <- outcomeFromError(err)
			return
		}
		outCh <- Outcome{Kind: OutcomeOK, Result: res}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-outCh:
		cancel()
		return o
	case <-timer.C:
		cancel()
		return Outcome{Kind: OutcomeTimeout}
	}
}
