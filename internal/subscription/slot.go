package subscription

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Slot.Wait once the slot is closed and holds no
// value the waiter has not seen.
var ErrClosed = errors.New("subscription: slot closed")

// Slot is a single-value broadcast. Publish overwrites the value and wakes
// every waiter; a waiter only ever sees the latest value, never a backlog.
type Slot[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	changed chan struct{}
	closed  bool
}

// NewSlot creates a slot holding initial. The initial value does not count
// as a change.
func NewSlot[T any](initial T) *Slot[T] {
	return &Slot[T]{
		value:   initial,
		changed: make(chan struct{}),
	}
}

// Publish stores v and wakes all waiters. Returns false if the slot is closed.
func (s *Slot[T]) Publish(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.value = v
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
	return true
}

// Load returns the current value and how many times it has been published.
func (s *Slot[T]) Load() (T, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.version
}

// Wait blocks until a value is published after the call and returns the
// latest value. It returns ErrClosed if the slot is closed first, or the
// context error if ctx ends first.
func (s *Slot[T]) Wait(ctx context.Context) (T, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		var zero T
		return zero, ErrClosed
	}
	start := s.version
	ch := s.changed
	s.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version == start {
		var zero T
		return zero, ErrClosed
	}
	return s.value, nil
}

// Close wakes all waiters with ErrClosed and rejects further publishes.
// Safe to call more than once.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.changed)
}

// Closed reports whether Close has been called.
func (s *Slot[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
