// Package client implements the RPC client: discover instances, pick
// one, and call it over a shared pool of multiplexed NA transports.
//
// One call, end to end:
//
//	Call("Arith.Add", args, reply)
//	  → Registry.Discover("Arith")    instance list
//	  → Balancer.Pick(instances)      one address
//	  → getTransport(addr)            a shared multiplexed transport
//	  → transport.Send()              frame out, response channel back
//	  → <-channel                     response routed by recvLoop
//	  → json.Unmarshal → reply
package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"na-rpc/codec"
	"na-rpc/loadbalance"
	"na-rpc/na"
	"na-rpc/naclass"
	"na-rpc/registry"
	"na-rpc/transport"
)

// Client owns the full call lifecycle: discovery, balancing, transport.
type Client struct {
	registry  registry.Registry
	balancer  loadbalance.Balancer
	codecType codec.CodecType

	// class is the client-role NA substrate every address is looked up
	// on; one per Client, shared by all of its transports.
	class na.Class

	// transports pools poolSize multiplexed transports per address. mu
	// guards the map itself, not the transports — they are shared, and
	// selection goes through the atomic counter instead.
	mu         sync.Mutex
	transports map[string][]*transport.ClientTransport
	poolSize   int
	counter    uint64
}

// NewClient builds a client. poolSize is how many NA addresses are
// looked up per server address; each one multiplexes, so even 1 handles
// concurrent calls — larger pools only relieve write-lock contention
// under heavy concurrency.
func NewClient(reg registry.Registry, bal loadbalance.Balancer, codecType byte, poolSize int) *Client {
	cls, err := naclass.New(naclass.Config{Backend: naclass.BackendTCP})
	if err != nil {
		// Client-role construction only allocates local state and
		// cannot fail for the TCP backend; don't thread an error
		// through every caller for a path that can't occur.
		panic(err)
	}
	return &Client{
		registry:   reg,
		balancer:   bal,
		transports: make(map[string][]*transport.ClientTransport),
		codecType:  codec.CodecType(codecType),
		class:      cls,
		poolSize:   poolSize,
	}
}

// Class returns the client-role na.Class all addresses are looked up
// on, letting a caller register memory for a bulk-argument call (a
// serialized na.MemHandle carried in the RPC payload) before invoking
// Call.
func (c *Client) Class() na.Class { return c.class }

// getTransport returns a shared transport for addr, round-robin across
// the pool. Transports are shared, never borrowed-and-returned: a
// transport is only occupied for the microseconds Send holds its write
// lock, not for the whole call, so exclusive checkout would leave it
// idle almost all the time. The first access to an address dials the
// whole pool under mu; every later access still takes mu briefly to look
// the pool up, and the atomic counter picks the transport within it.
func (c *Client) getTransport(addr string) (*transport.ClientTransport, error) {
	n := atomic.AddUint64(&c.counter, 1)

	c.mu.Lock()
	pool, ok := c.transports[addr]
	if !ok {
		pool = make([]*transport.ClientTransport, c.poolSize)
		c.transports[addr] = pool
		for i := 0; i < c.poolSize; i++ {
			naAddr, err := c.class.AddrLookup(addr)
			if err != nil {
				c.mu.Unlock()
				return nil, err
			}
			conn := transport.NewNAConn(c.class, naAddr)
			pool[i] = transport.NewClientTransport(conn, c.codecType)
		}
	}
	c.mu.Unlock()

	return pool[n%uint64(c.poolSize)], nil
}

// Call performs a synchronous RPC: discover, pick, send, block on the
// response channel, unmarshal.
func (c *Client) Call(serviceMethod string, args any, reply any) error {
	split := strings.Split(serviceMethod, ".")
	if len(split) != 2 {
		return fmt.Errorf("invalid serviceMethod format: %v", serviceMethod)
	}
	serviceName := split[0]

	instances, err := c.registry.Discover(serviceName)
	if err != nil {
		return err
	}

	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return err
	}

	t, err := c.getTransport(instance.Addr)
	if err != nil {
		return err
	}

	_, ch, err := t.Send(serviceMethod, args)
	if err != nil {
		return err
	}

	resp := <-ch
	if resp.Error != "" {
		return fmt.Errorf("server error: %v", resp.Error)
	}
	return json.Unmarshal(resp.Payload, &reply)
}
