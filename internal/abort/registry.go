package abort

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hangar-launcher/hangar/internal/errors"
)

// Handle is the cancellation token for one in-flight operation. The process
// runner watches Context; the lifecycle controller checks Aborted after the
// subprocess exits to classify the outcome.
type Handle struct {
	key          string
	registeredAt time.Time
	ctx          context.Context
	cancel       context.CancelFunc
	aborted      atomic.Bool
}

// Key returns the entity key this handle belongs to.
func (h *Handle) Key() string {
	return h.key
}

// RegisteredAt returns when the handle was created.
func (h *Handle) RegisteredAt() time.Time {
	return h.registeredAt
}

// Context is cancelled when the operation is aborted or unregistered.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// Done is shorthand for Context().Done().
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Aborted reports whether an explicit abort request fired this handle.
// It stays false when the context was released by a normal Unregister.
func (h *Handle) Aborted() bool {
	return h.aborted.Load()
}

// abort marks the handle as user-cancelled and fires its context.
func (h *Handle) abort() {
	h.aborted.Store(true)
	h.cancel()
}

// Registry maintains the in-memory map of entity key to live handle.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]*Handle),
	}
}

// Register creates and stores a handle for key. Returns
// ErrAlreadyRegistered if a live handle for key exists.
func (r *Registry) Register(key string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.handles[key]; ok {
		return nil, fmt.Errorf("%w: %s (since %s)",
			errors.ErrAlreadyRegistered, key, existing.registeredAt.Format(time.RFC3339))
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		key:          key,
		registeredAt: time.Now(),
		ctx:          ctx,
		cancel:       cancel,
	}
	r.handles[key] = h
	return h, nil
}

// Resolve returns the live handle for key, or (nil, false) if none exists.
func (r *Registry) Resolve(key string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[key]
	return h, ok
}

// Unregister removes the handle for key and releases its context without
// marking it aborted. Returns false if no handle was registered.
func (r *Registry) Unregister(key string) bool {
	r.mu.Lock()
	h, ok := r.handles[key]
	if ok {
		delete(r.handles, key)
	}
	r.mu.Unlock()

	if ok {
		// Release outside the lock; the operation is already terminal.
		h.cancel()
	}
	return ok
}

// Abort fires the cancellation for key's handle. Returns true if a handle
// was found; false means nothing was running and the call was a no-op. The
// handle stays registered until its owner observes the cancellation and
// unregisters.
func (r *Registry) Abort(key string) bool {
	r.mu.RLock()
	h, ok := r.handles[key]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	h.abort()
	return true
}

// AbortAll fires cancellation for every live handle and returns how many
// were signalled. Used on shutdown.
func (r *Registry) AbortAll() int {
	r.mu.RLock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	for _, h := range handles {
		h.abort()
	}
	return len(handles)
}

// Keys returns the registered entity keys, sorted for deterministic output.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.handles))
	for k := range r.handles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handles)
}
