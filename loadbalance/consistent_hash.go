package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"na-rpc/registry"
)

// ConsistentHashBalancer maps a caller-supplied key to a fixed instance
// for as long as the ring membership holds, giving stateful services
// cache affinity. Each real instance contributes replicas virtual nodes
// so the ring stays statistically even with few instances.
//
// Pick here takes a key rather than an instance slice — consistent
// hashing is key-addressed, so this type sits beside the Balancer
// interface rather than behind it.
type ConsistentHashBalancer struct {
	replicas int
	ring     []uint32
	nodes    map[uint32]*registry.ServiceInstance
}

// NewConsistentHashBalancer builds an empty ring with 100 virtual nodes
// per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]*registry.ServiceInstance),
	}
}

// Add hashes instance onto the ring at replicas points ("addr#i") and
// re-sorts so Pick can binary-search.
func (b *ConsistentHashBalancer) Add(instance *registry.ServiceInstance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Pick walks clockwise from the key's hash to the nearest virtual node,
// wrapping to the ring's start past the largest hash.
func (b *ConsistentHashBalancer) Pick(key string) (*registry.ServiceInstance, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("hash ring is empty")
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
