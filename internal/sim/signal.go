package sim

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errWaitTimeout is returned by signal.Wait when the stage deadline passes.
var errWaitTimeout = errors.New("wait timed out")

// signal is a one-shot notification carrying a value. The first Fire wins;
// later calls are ignored.
type signal[T any] struct {
	once sync.Once
	ch   chan struct{}
	val  T
}

func newSignal[T any]() *signal[T] {
	return &signal[T]{ch: make(chan struct{})}
}

// Fire stores v and wakes waiters. It reports whether this call set the value.
func (s *signal[T]) Fire(v T) bool {
	won := false
	s.once.Do(func() {
		s.val = v
		close(s.ch)
		won = true
	})
	return won
}

// Fired reports whether the signal has been set.
func (s *signal[T]) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the signal fires, timeout elapses or ctx is done.
func (s *signal[T]) Wait(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	if s.Fired() {
		return s.val, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.ch:
		return s.val, nil
	case <-timer.C:
		return zero, errWaitTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
