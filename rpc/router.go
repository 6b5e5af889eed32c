package rpc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"p4rpc/middleware"
)

// HandlerFunc handles one inbound call. remote sends packets back to the peer
// that issued it; args and kwargs are the packet's values, unmodified.
type HandlerFunc func(ctx context.Context, remote *Remote, args [][]byte, kwargs map[string][]byte) error

// Router is the registration table of local handler names. It is normally
// filled during setup and shared read-only by every channel's Dispatcher.
type Router struct {
	mu          sync.RWMutex
	handlers    map[string]HandlerFunc
	middlewares []middleware.Middleware
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// HandleFunc registers h under a local name such as "client__Message".
func (r *Router) HandleFunc(name string, h HandlerFunc) error {
	if h == nil {
		return fmt.Errorf("rpc: nil handler for %q", name)
	}
	if _, err := WireName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exist := r.handlers[name]; exist {
		return fmt.Errorf("rpc: multiple registrations for %q", name)
	}
	r.handlers[name] = h
	return nil
}

// Use registers a middleware. Middlewares are applied in the order they are
// added, to Dispatchers created afterwards.
func (r *Router) Use(mw middleware.Middleware) {
	r.mu.Lock()
	r.middlewares = append(r.middlewares, mw)
	r.mu.Unlock()
}

func (r *Router) Lookup(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	return h, ok
}

// Names returns the registered local names, sorted.
func (r *Router) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Router) chain() middleware.Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return middleware.Chain(append([]middleware.Middleware(nil), r.middlewares...)...)
}
