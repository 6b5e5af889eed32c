package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"p4rpc/registry"
)

const defaultReplicas = 100

// HashRing maps keys to instances. The same key always maps to the same
// instance until the ring changes.
//
// Virtual nodes: each real instance is mapped to N virtual nodes on the ring,
// otherwise a handful of instances may cluster together and take uneven load.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type HashRing struct {
	replicas int                                  // Virtual nodes per real instance
	ring     []uint32                             // Sorted hash values on the ring
	nodes    map[uint32]*registry.ServiceInstance // Hash value → instance mapping
}

func NewHashRing(replicas int) *HashRing {
	if replicas <= 0 {
		replicas = defaultReplicas
	}
	return &HashRing{
		replicas: replicas,
		nodes:    make(map[uint32]*registry.ServiceInstance),
	}
}

// Add places an instance onto the hash ring with N virtual nodes hashed
// from "{addr}#{i}".
func (h *HashRing) Add(instance *registry.ServiceInstance) {
	for i := 0; i < h.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		if _, ok := h.nodes[hash]; !ok {
			h.ring = append(h.ring, hash)
		}
		h.nodes[hash] = instance
	}
	sort.Slice(h.ring, func(i, j int) bool {
		return h.ring[i] < h.ring[j]
	})
}

// Get finds the first node clockwise of the key's hash, wrapping around.
func (h *HashRing) Get(key string) (*registry.ServiceInstance, error) {
	if len(h.ring) == 0 {
		return nil, registry.ErrNoInstances
	}
	hash := crc32.ChecksumIEEE([]byte(key))

	idx := sort.Search(len(h.ring), func(i int) bool {
		return h.ring[i] >= hash
	})
	if idx == len(h.ring) {
		idx = 0
	}

	return h.nodes[h.ring[idx]], nil
}

// ConsistentHashBalancer always picks the instance owning Key on a ring built
// from the current instance list. The ring is rebuilt only when the list changes.
type ConsistentHashBalancer struct {
	Key string

	mu        sync.Mutex
	signature string
	ring      *HashRing
}

func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{Key: key}
}

func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, registry.ErrNoInstances
	}

	addrs := make([]string, len(instances))
	for i := range instances {
		addrs[i] = instances[i].Addr
	}
	sort.Strings(addrs)
	signature := strings.Join(addrs, ",")

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ring == nil || signature != b.signature {
		ring := NewHashRing(defaultReplicas)
		for i := range instances {
			inst := instances[i]
			ring.Add(&inst)
		}
		b.ring, b.signature = ring, signature
	}
	return b.ring.Get(b.Key)
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
