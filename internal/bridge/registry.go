// Package bridge turns host callback invocations into typed consumer calls
// and keeps the host-visible callbacks alive for as long as a host may still
// invoke them.
package bridge

import (
	"sync"

	"github.com/google/uuid"
)

// HostCallback is the function a host invokes with a raw payload.
type HostCallback func(raw any)

// Kind distinguishes one-shot requests from watches.
type Kind int

const (
	// OneShot handles are released after the first invocation of either callback.
	OneShot Kind = iota
	// Watch handles are released only by an explicit Release after the host
	// has cleared the watch.
	Watch
)

func (k Kind) String() string {
	if k == Watch {
		return "watch"
	}
	return "one_shot"
}

// Registry tracks the handles a host may still invoke, keyed by handle id.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*Handle
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]*Handle)}
}

// Register records a bridged callback pair and returns its handle. failure
// may be nil when the consumer supplied no error callback.
func (r *Registry) Register(kind Kind, success, failure HostCallback) *Handle {
	h := &Handle{
		id:       uuid.NewString(),
		kind:     kind,
		registry: r,
		success:  success,
		failure:  failure,
	}

	r.mu.Lock()
	r.pending[h.id] = h
	r.mu.Unlock()

	return h
}

// lookup returns the pending handle with the given id.
func (r *Registry) lookup(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.pending[id]
	return h, ok
}

// Len returns the number of handles not yet released.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// Handle owns one bridged success/error pair.
type Handle struct {
	id       string
	kind     Kind
	registry *Registry
	success  HostCallback
	failure  HostCallback

	mu        sync.Mutex
	fired     bool
	released  bool
	onRelease []func()
}

// ID returns the registry key of the handle.
func (h *Handle) ID() string { return h.id }

// Kind returns whether the handle belongs to a request or a watch.
func (h *Handle) Kind() Kind { return h.kind }

// Success returns the host-invocable success callback.
func (h *Handle) Success() HostCallback {
	return func(raw any) { h.invoke(h.success, raw) }
}

// Error returns the host-invocable error callback, or nil when the consumer
// did not ask for errors. Hosts pass nil through as "no error callback".
func (h *Handle) Error() HostCallback {
	if h.failure == nil {
		return nil
	}
	return func(raw any) { h.invoke(h.failure, raw) }
}

// HasError reports whether the consumer supplied an error callback.
func (h *Handle) HasError() bool { return h.failure != nil }

// OnRelease registers fn to run when the handle is released. Hosts use it to
// free host-side function objects. If the handle is already released fn runs
// immediately.
func (h *Handle) OnRelease(fn func()) {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		fn()
		return
	}
	h.onRelease = append(h.onRelease, fn)
	h.mu.Unlock()
}

// Released reports whether the handle has been released.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Release removes the handle from its registry and runs the release hooks.
// Calling it more than once has no effect.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	hooks := h.onRelease
	h.onRelease = nil
	h.mu.Unlock()

	h.registry.remove(h.id)
	for _, fn := range hooks {
		fn()
	}
}

// invoke runs fn unless the handle is finished. A one-shot handle accepts a
// single invocation and is released once it returns.
func (h *Handle) invoke(fn HostCallback, raw any) {
	h.mu.Lock()
	if h.released || (h.kind == OneShot && h.fired) {
		h.mu.Unlock()
		return
	}
	h.fired = true
	h.mu.Unlock()

	if h.kind == OneShot {
		defer h.Release()
	}
	fn(raw)
}
