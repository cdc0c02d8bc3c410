package distribution

import (
	"sync"

	"dropbot/internal/transport"
)

// Registry is the in-memory store of open drops, keyed by announcement
// message id. Every logical mutation happens under one lock; callers get
// deep copies, never live pointers.
type Registry struct {
	mu    sync.Mutex
	items map[int]*Distribution
}

func NewRegistry() *Registry {
	return &Registry{items: map[int]*Distribution{}}
}

// Put registers a record. The caller must not retain the pointer.
func (r *Registry) Put(d *Distribution) {
	r.mu.Lock()
	r.items[d.ID] = d
	r.mu.Unlock()
}

// Get returns a copy of the record, if present.
func (r *Registry) Get(id int) (*Distribution, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return nil, false
	}
	return d.clone(), true
}

// Remove deletes the record and returns its final state. The returned copy
// is the only remaining view; completion works from it.
func (r *Registry) Remove(id int) (*Distribution, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return nil, false
	}
	delete(r.items, id)
	return d.clone(), true
}

// Mark sets or clears the received flag for recipient slot idx. It reports
// whether the record exists, whether idx addresses a real slot, and whether
// the record is now fully covered.
func (r *Registry) Mark(id, idx int, received bool) (exists, valid, covered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return false, false, false
	}
	if idx < 0 || idx >= len(d.Recipients) {
		return true, false, false
	}
	if received {
		d.Received[idx] = struct{}{}
	} else {
		delete(d.Received, idx)
	}
	return true, true, d.covered()
}

// SetPrice records the price on an open drop.
func (r *Registry) SetPrice(id int, price string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return false
	}
	d.Price = price
	return true
}

// SetThread attaches the discussion thread handle once the queue has
// created it.
func (r *Registry) SetThread(id int, thread transport.ThreadRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return false
	}
	d.Thread = thread
	return true
}

// Snapshot returns copies of every open record.
func (r *Registry) Snapshot() []*Distribution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Distribution, 0, len(r.items))
	for _, d := range r.items {
		out = append(out, d.clone())
	}
	return out
}

// Len reports the number of open drops.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
