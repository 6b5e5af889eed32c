// Package registry is the service discovery layer: servers register the
// address they accept p4rpc connections on, clients discover it.
package registry

import "errors"

// ErrNoInstances is returned by Discover callers that need at least one instance.
var ErrNoInstances = errors.New("registry: no instances")

type ServiceInstance struct {
	Addr    string
	Weight  int // Weight for load balancing
	Version string
}

type Registry interface {
	Register(serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(serviceName string, addr string) error
	Discover(serviceName string) ([]ServiceInstance, error)
	Watch(serviceName string) <-chan []ServiceInstance
}
