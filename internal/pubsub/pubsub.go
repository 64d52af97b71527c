// Package pubsub provides the ordered handler registries behind every On*
// subscription in hookwatch.
package pubsub

import "sync"

// Unsubscribe removes a previously registered handler. Calling it more than
// once is harmless.
type Unsubscribe func()

type entry[T any] struct {
	id uint64
	fn T
}

// Registry holds handlers in registration order. The zero value is ready to
// use.
type Registry[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	items  []entry[T]
}

func (r *Registry[T]) Add(fn T) Unsubscribe {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.items = append(r.items, entry[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, it := range r.items {
				if it.id == id {
					r.items = append(r.items[:i:i], r.items[i+1:]...)
					return
				}
			}
		})
	}
}

// Snapshot returns the handlers registered right now. Handlers added or
// removed while the caller iterates do not affect the returned slice.
func (r *Registry[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, len(r.items))
	for i, it := range r.items {
		out[i] = it.fn
	}
	return out
}
