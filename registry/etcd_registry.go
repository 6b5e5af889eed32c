// etcd is used as a "distributed phonebook" for p4rpc servers:
//
//	Key:   /p4rpc/{ServiceName}/{Addr}
//	Value: JSON-encoded ServiceInstance
//
// Registration uses TTL-based leases: if the server crashes, the lease expires
// and the entry is removed, so dead servers are never handed to clients.
package registry

import (
	"context"
	"encoding/json"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"p4rpc/logger"
)

const (
	KeyPrefix      = "/p4rpc/"
	DefaultTimeout = 5 * time.Second
)

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client  *clientv3.Client // thread-safe, shared across goroutines
	timeout time.Duration    // per request
	ctx     context.Context  // canceled by Close, scopes KeepAlive and Watch
	cancel  context.CancelFunc
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: DefaultTimeout,
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EtcdRegistry{client: c, timeout: DefaultTimeout, ctx: ctx, cancel: cancel}, nil
}

func serviceKey(serviceName, addr string) string {
	return servicePrefix(serviceName) + addr
}

func servicePrefix(serviceName string) string {
	return KeyPrefix + serviceName + "/"
}

// Register adds a service instance to etcd with a TTL lease.
//
// Flow:
//  1. Create a lease with the given TTL (e.g., 10 seconds)
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to automatically renew the lease
//
// leaseID stays local so several servers can share one EtcdRegistry.
func (r *EtcdRegistry) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, serviceKey(serviceName, instance.Addr), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	// KeepAlive outlives this call, so it is scoped to the registry.
	ch, err := r.client.KeepAlive(r.ctx, lease.ID)
	if err != nil {
		return err
	}

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
		logger.L().Debug("registry: keepalive stopped", zap.String("service", serviceName), zap.String("addr", instance.Addr))
	}()
	return nil
}

// Deregister removes a service instance from etcd.
// Called during graceful shutdown before closing the listener.
func (r *EtcdRegistry) Deregister(serviceName string, addr string) error {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()
	_, err := r.client.Delete(ctx, serviceKey(serviceName, addr))
	return err
}

// Watch monitors a service prefix in etcd and emits updated instance lists
// whenever changes occur (registrations, deregistrations, lease expirations).
// The channel is closed when the registry is closed.
func (r *EtcdRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(r.ctx, servicePrefix(serviceName), clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list, simpler than applying individual events.
			instances, err := r.Discover(serviceName)
			if err != nil {
				logger.L().Warn("registry: rediscover failed", zap.String("service", serviceName), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-r.ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns all currently registered instances for a service.
func (r *EtcdRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Get(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			logger.L().Warn("registry: skipping malformed entry", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}

	return instances, nil
}

// Close stops every KeepAlive and Watch and closes the etcd client.
func (r *EtcdRegistry) Close() error {
	r.cancel()
	return r.client.Close()
}
