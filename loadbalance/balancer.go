// Package loadbalance selects which service instance a client dials when
// discovery returns more than one. Selection happens before AddrLookup —
// a balancer hands back an instance whose Addr is an NA port name, and
// the transport layer does the actual connecting.
//
// Strategies:
//   - RoundRobin:      equal-capacity, stateless instances
//   - WeightedRandom:  instances of uneven capacity
//   - ConsistentHash:  key affinity for stateful instances
package loadbalance

import "na-rpc/registry"

// Balancer picks one instance per call. Pick runs on every RPC and may
// be called from many goroutines at once.
type Balancer interface {
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name identifies the strategy in logs.
	Name() string
}
