package gateway

import (
	"container/list"
	"context"
	"sync/atomic"
)

// Item states.
const (
	statePending int32 = iota
	stateRunning
	stateCancelled
	stateDone
)

// item is one queued command, type-erased for the worker.
type item struct {
	name     string
	ctx      context.Context
	run      func(ctx context.Context, tx *Tx) (any, error)
	finish   func(v any, err error)
	state    atomic.Int32
	enqueued int64 // unix nanos

	// elem is the item's queue position while queued. Guarded by the
	// gateway's mu.
	elem *list.Element
}

// Future is the pending result of a command submitted with Execute.
type Future[T any] struct {
	g    *Gateway
	it   *item
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any](g *Gateway) *Future[T] {
	return &Future[T]{g: g, done: make(chan struct{})}
}

func (f *Future[T]) complete(v any, err error) {
	if err == nil {
		if typed, ok := v.(T); ok {
			f.val = typed
		}
	}
	f.err = err
	close(f.done)
}

// failed returns a future that already holds err.
func failed[T any](g *Gateway, err error) *Future[T] {
	f := newFuture[T](g)
	f.complete(nil, err)
	return f
}

// Done is closed once the command finished, failed or was cancelled.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the command completes or ctx is done. A ctx timeout only
// stops the wait; the command still runs and its result is discarded.
//
// Waiting from inside a command of the same gateway on a future that has
// not completed fails with ErrReentrantWait.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}

	if f.g != nil && f.g.inWorker(ctx) {
		var zero T
		return zero, ErrReentrantWait
	}

	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel removes the command from the queue if it has not started, freeing
// its slot for other commands. It reports whether the cancellation took
// effect; a started command always runs to completion.
func (f *Future[T]) Cancel() bool {
	if f.it == nil || !f.it.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	if f.g != nil {
		f.g.remove(f.it)
	}
	f.complete(nil, ErrCancelled)
	return true
}
