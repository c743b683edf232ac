package subscription

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
)

// Registry keeps the callbacks interested in values of type T.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Callbacks run on the goroutine that calls Notify, outside the
//     registry lock, so they may Register or Unregister freely.
type Registry[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[uint64]*entry[T]
}

type entry[T any] struct {
	id       uint64
	callback func(T)
	active   atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		entries: make(map[uint64]*entry[T]),
	}
}

// Register adds callback and returns its id. Ids start at 1 and strictly
// increase for the lifetime of the registry.
func (r *Registry[T]) Register(callback func(T)) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	e := &entry[T]{id: r.nextID, callback: callback}
	e.active.Store(true)
	r.entries[e.id] = e
	return e.id
}

// Unregister removes the callback with the given id. Unknown ids are
// ignored. A Notify that starts after Unregister returns never invokes
// the callback, and neither does the rest of a Notify pass on the calling
// goroutine. A Notify running concurrently on another goroutine may still
// make one invocation that was already past its check.
func (r *Registry[T]) Unregister(id uint64) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		e.active.Store(false)
	}
}

// Subscribe registers callback and wraps the registration in a Handle.
func (r *Registry[T]) Subscribe(callback func(T)) *Handle {
	id := r.Register(callback)
	return newHandle(id, func() { r.Unregister(id) })
}

// Notify invokes every registered callback with v, in registration order.
// The set of callbacks is snapshotted before the first invocation.
func (r *Registry[T]) Notify(v T) {
	r.mu.Lock()
	snapshot := make([]*entry[T], 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, e)
	}
	r.mu.Unlock()

	slices.SortFunc(snapshot, func(a, b *entry[T]) int {
		return cmp.Compare(a.id, b.id)
	})

	for _, e := range snapshot {
		if e.active.Load() {
			e.callback(v)
		}
	}
}

// Len returns the number of registered callbacks.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
