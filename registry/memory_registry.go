package registry

import "sync"

// MemoryRegistry is a Registry for a single process: tests and examples that
// run server and client side by side. TTLs are ignored.
type MemoryRegistry struct {
	mu       sync.Mutex
	services map[string][]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string][]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

// Register replaces any instance already registered under the same address.
func (r *MemoryRegistry) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	instances := r.remove(serviceName, instance.Addr)
	r.services[serviceName] = append(instances, instance)
	r.notify(serviceName)
	return nil
}

func (r *MemoryRegistry) Deregister(serviceName string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[serviceName] = r.remove(serviceName, addr)
	r.notify(serviceName)
	return nil
}

func (r *MemoryRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServiceInstance(nil), r.services[serviceName]...), nil
}

// Watch emits the current list on every change. A slow watcher only ever
// sees the latest list.
func (r *MemoryRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	r.mu.Lock()
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	r.mu.Unlock()
	return ch
}

func (r *MemoryRegistry) remove(serviceName, addr string) []ServiceInstance {
	instances := r.services[serviceName][:0:0]
	for _, inst := range r.services[serviceName] {
		if inst.Addr != addr {
			instances = append(instances, inst)
		}
	}
	return instances
}

// notify must be called with mu held.
func (r *MemoryRegistry) notify(serviceName string) {
	snapshot := append([]ServiceInstance(nil), r.services[serviceName]...)
	for _, ch := range r.watchers[serviceName] {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
