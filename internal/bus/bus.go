// Package bus provides the synchronous observer registry every input source
// publishes through.
package bus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

// Registry fans UnifiedInputEvents out to subscribers. Delivery is
// synchronous on the publisher's goroutine, in subscription order; Publish
// returns once every subscriber has seen the event.
type Registry struct {
	mu    sync.Mutex
	subs  map[string]func(contracts.UnifiedInputEvent)
	order []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{subs: make(map[string]func(contracts.UnifiedInputEvent))}
}

// Subscribe registers fn and returns its disposer. The disposer is
// idempotent.
func (r *Registry) Subscribe(fn func(contracts.UnifiedInputEvent)) (cancel func()) {
	id := uuid.NewString()
	r.mu.Lock()
	r.subs[id] = fn
	r.order = append(r.order, id)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[id]; !ok {
			return
		}
		delete(r.subs, id)
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers ev to every current subscriber.
func (r *Registry) Publish(ev contracts.UnifiedInputEvent) {
	r.mu.Lock()
	fns := make([]func(contracts.UnifiedInputEvent), 0, len(r.order))
	for _, id := range r.order {
		fns = append(fns, r.subs[id])
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Len reports the current subscriber count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
