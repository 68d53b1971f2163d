// Package promise provides a single-assignment result slot with
// exactly-once settlement. It is the correlation primitive for the
// provider's pending map and the broker's decision handles.
package promise

import (
	"context"
	"sync"
)

// Promise settles at most once with either a value or an error.
// Settling an already-settled promise is a no-op.
type Promise[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func New[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolved returns a promise already settled with val.
func Resolved[T any](val T) *Promise[T] {
	p := New[T]()
	p.Resolve(val)
	return p
}

// Rejected returns a promise already settled with err.
func Rejected[T any](err error) *Promise[T] {
	p := New[T]()
	p.Reject(err)
	return p
}

// Resolve settles the promise with a value. Returns true if this call
// performed the settlement.
func (p *Promise[T]) Resolve(val T) bool {
	settled := false
	p.once.Do(func() {
		p.val = val
		settled = true
		close(p.done)
	})
	return settled
}

// Reject settles the promise with an error. Returns true if this call
// performed the settlement.
func (p *Promise[T]) Reject(err error) bool {
	settled := false
	p.once.Do(func() {
		p.err = err
		settled = true
		close(p.done)
	})
	return settled
}

// Done is closed once the promise settles.
func (p *Promise[T]) Done() <-chan struct{} { return p.done }

// Settled reports whether the promise has settled, without blocking.
func (p *Promise[T]) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Await blocks until the promise settles or ctx is cancelled. The promise
// itself imposes no timeout; bounds come from the caller's context.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
