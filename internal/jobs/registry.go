// Package jobs tracks in-flight background work for graceful shutdown.
package jobs

import (
	"context"
	"sync"
)

// Handle represents one in-flight background job.
type Handle struct {
	uuid   string
	once   sync.Once
	done   chan struct{}
	finish func()
}

// UUID returns the pyramid uuid the job belongs to.
func (h *Handle) UUID() string { return h.uuid }

// Done is closed when the job finishes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Finish marks the job as completed and removes it from the registry.
// Safe to call more than once.
func (h *Handle) Finish() {
	h.once.Do(h.finish)
}

// Registry is an in-memory map of uuid to job handle. Writers are the
// job-schedule and job-completion paths only.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Add registers a new job for the given uuid and returns its handle.
func (r *Registry) Add(uuid string) *Handle {
	h := &Handle{uuid: uuid, done: make(chan struct{})}
	h.finish = func() {
		r.mu.Lock()
		delete(r.handles, uuid)
		r.mu.Unlock()
		close(h.done)
	}

	r.mu.Lock()
	r.handles[uuid] = h
	r.mu.Unlock()
	return h
}

// Get returns the handle for the given uuid, if one is in flight.
func (r *Registry) Get(uuid string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[uuid]
	return h, ok
}

// Len returns the number of in-flight jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// WaitAll blocks until every job registered at call time has finished or
// the context expires.
func (r *Registry) WaitAll(ctx context.Context) error {
	r.mu.RLock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
