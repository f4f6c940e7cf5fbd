package loadbalance

import (
	"fmt"
	"sync/atomic"

	"na-rpc/registry"
)

// RoundRobinBalancer cycles through instances in order. The counter is
// atomic, so concurrent Picks stay evenly spread without a lock.
type RoundRobinBalancer struct {
	counter int64
}

func (b *RoundRobinBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no instances available")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
