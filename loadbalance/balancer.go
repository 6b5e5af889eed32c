// Package loadbalance picks the server a client dials among the instances
// discovered for a service.
//
// Three strategies are implemented:
//   - RoundRobin:      Equal-capacity servers
//   - WeightedRandom:  Heterogeneous servers (different CPU/memory)
//   - ConsistentHash:  Client affinity, the same client key lands on the same server
package loadbalance

import (
	"fmt"

	"p4rpc/registry"
)

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each dial to select a target instance.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer registered under name. key is only used by
// ConsistentHash.
func New(name, key string) (Balancer, error) {
	switch name {
	case "", "RoundRobin":
		return &RoundRobinBalancer{}, nil
	case "WeightedRandom":
		return &WeightedRandomBalancer{}, nil
	case "ConsistentHash":
		return NewConsistentHashBalancer(key), nil
	}
	return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
}
