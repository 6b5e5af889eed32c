package loadbalance

import (
	"sync/atomic"

	"p4rpc/registry"
)

// RoundRobinBalancer distributes dials evenly across all instances in order.
// Uses an atomic counter for lock-free, goroutine-safe operation.
type RoundRobinBalancer struct {
	counter atomic.Uint64 // incremented on each Pick()
}

func (b *RoundRobinBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, registry.ErrNoInstances
	}
	index := (b.counter.Add(1) - 1) % uint64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
