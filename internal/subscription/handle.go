package subscription

import (
	"runtime"
	"sync"
)

// Handle is the capability to cancel one registration.
//
// The registration is released exactly once: either by Unsubscribe, or by
// the runtime after the Handle becomes unreachable. Callers that want a
// subscription to live must keep the Handle.
type Handle struct {
	id    uint64
	state *handleState
}

// handleState is kept apart from Handle so the cleanup never references
// the Handle itself.
type handleState struct {
	once    sync.Once
	release func()
}

func (s *handleState) run() {
	s.once.Do(s.release)
}

func newHandle(id uint64, release func()) *Handle {
	state := &handleState{release: release}
	h := &Handle{id: id, state: state}
	runtime.AddCleanup(h, func(s *handleState) { s.run() }, state)
	return h
}

// ID returns the registration id.
func (h *Handle) ID() uint64 {
	return h.id
}

// Unsubscribe cancels the registration. Safe to call more than once.
func (h *Handle) Unsubscribe() {
	h.state.run()
}
