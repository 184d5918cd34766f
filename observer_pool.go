package xdispatch

import (
	"sync"
	"sync/atomic"
	"time"
)

// ObserverPool fans dispatcher events out to observers on background workers
// so a slow observer never delays Dispatch. Events are dropped when the buffer
// is full.
type ObserverPool struct {
	eventCh   chan *Event
	workers   int
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	dropped   atomic.Uint64
	processed atomic.Uint64
	panics    atomic.Uint64
}

// NewObserverPool starts workers goroutines reading from a bufferSize queue.
func NewObserverPool(workers, bufferSize int) *ObserverPool {
	if workers < 1 {
		workers = 4
	}
	if bufferSize < 1 {
		bufferSize = 1024
	}
	op := &ObserverPool{
		eventCh: make(chan *Event, bufferSize),
		workers: workers,
		done:    make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		op.wg.Add(1)
		go op.worker()
	}
	return op
}

// Notify queues e for observers without blocking.
func (op *ObserverPool) Notify(e Event, observers []Observer) {
	if len(observers) == 0 || op.closed.Load() {
		return
	}
	e.observers = observers
	select {
	case op.eventCh <- &e:
	default:
		op.dropped.Add(1)
	}
}

func (op *ObserverPool) worker() {
	defer op.wg.Done()
	for {
		select {
		case e := <-op.eventCh:
			op.deliver(e)
		case <-op.done:
			// drain what is already queued
			for {
				select {
				case e := <-op.eventCh:
					op.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (op *ObserverPool) deliver(e *Event) {
	if e == nil {
		return
	}
	for _, obs := range e.observers {
		notifyOne(obs, *e, &op.panics)
	}
	op.processed.Add(1)
}

// notifyOne calls obs and swallows its panic.
func notifyOne(obs Observer, e Event, panics *atomic.Uint64) {
	if obs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && panics != nil {
			panics.Add(1)
		}
	}()
	obs.OnEvent(e)
}

// Close stops accepting events and waits up to timeout for queued ones.
func (op *ObserverPool) Close(timeout time.Duration) error {
	if op.closed.Swap(true) {
		return nil
	}
	close(op.done)

	finished := make(chan struct{})
	go func() {
		op.wg.Wait()
		close(finished)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-finished:
		return nil
	case <-t.C:
		return ErrObserverPoolShutdown
	}
}

// Stats returns current pool statistics.
func (op *ObserverPool) Stats() PoolStats {
	return PoolStats{
		Dropped:      op.dropped.Load(),
		Processed:    op.processed.Load(),
		ActiveEvents: len(op.eventCh),
		Workers:      op.workers,
		BufferSize:   cap(op.eventCh),
	}
}
