// ABOUTME: Poll-able single-result operations backing installer and manifest requests
// ABOUTME: Goroutine-backed futures plus manually resolved operations for hosts and tests

package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrPending is returned by Result before the operation has completed.
var ErrPending = errors.New("operation still pending")

// Poller is the non-blocking completion check the tracker drives.
type Poller interface {
	Done() bool
}

// Operation is an in-flight request yielding a single result.
type Operation[T any] interface {
	Poller
	// Result returns the value or failure once Done reports true.
	Result() (T, error)
}

// Go runs fn on its own goroutine and returns an Operation for its result.
// A panic in fn is converted into the operation's error.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) Operation[T] {
	op := &Manual[T]{}
	go func() {
		var (
			v   T
			err error
		)
		defer func() {
			if r := recover(); r != nil {
				var zero T
				v, err = zero, fmt.Errorf("operation panicked: %v", r)
			}
			op.Resolve(v, err)
		}()
		v, err = fn(ctx)
	}()
	return op
}

// Resolved returns an Operation that is already complete.
func Resolved[T any](v T, err error) Operation[T] {
	op := &Manual[T]{}
	op.Resolve(v, err)
	return op
}

// Failed returns a completed Operation carrying err.
func Failed[T any](err error) Operation[T] {
	var zero T
	return Resolved(zero, err)
}

// Manual is an Operation completed explicitly by its owner.
type Manual[T any] struct {
	once sync.Once
	done atomic.Bool
	val  T
	err  error
}

// NewManual returns a pending Manual operation.
func NewManual[T any]() *Manual[T] {
	return &Manual[T]{}
}

// Resolve completes the operation. Only the first call has any effect.
func (m *Manual[T]) Resolve(v T, err error) {
	m.once.Do(func() {
		m.val, m.err = v, err
		m.done.Store(true)
	})
}

// Done reports whether the operation has completed.
func (m *Manual[T]) Done() bool {
	return m.done.Load()
}

// Result returns the outcome, or ErrPending while incomplete.
func (m *Manual[T]) Result() (T, error) {
	if !m.done.Load() {
		var zero T
		return zero, ErrPending
	}
	return m.val, m.err
}
